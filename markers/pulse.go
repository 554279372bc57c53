package markers

import (
	"math"
	"time"

	"github.com/signalsfoundry/globeview/model"
)

// Pulse parameters for capital markers.
const (
	PulsePeriod    = 2 * time.Second
	PulseAmplitude = 0.15
)

// Pulse returns the size multiplier for a marker of category c at time
// now. Only capitals pulse; every other category returns 1. The result
// depends on now alone, so frames are reproducible under a fixed clock.
func Pulse(c model.Category, now time.Time) float64 {
	if c != model.CategoryCapital {
		return 1
	}
	phase := float64(now.UnixNano()%int64(PulsePeriod)) / float64(PulsePeriod)
	return 1 + PulseAmplitude*math.Sin(2*math.Pi*phase)
}
