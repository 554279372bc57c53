package controls

import (
	"math"
	"sync"
)

// snapEpsilon ends damping once a value is this close to its target.
const snapEpsilon = 1e-5

// flight animates the distance over a fixed number of frames. A flight
// that is aimed also carries two orientation components eased on the same
// curve.
type flight struct {
	step, steps int
	from, to    float64
	eased       float64

	aimed      bool
	fromA, toA [2]float64
}

func (f *flight) aim(from, to [2]float64) {
	f.aimed = true
	f.fromA, f.toA = from, to
}

// angle returns orientation component i at the current step.
func (f *flight) angle(i int) float64 {
	return f.fromA[i] + (f.toA[i]-f.fromA[i])*f.eased
}

// EaseOutCubic maps linear progress p in [0,1] to 1 - (1 - p)^3.
func EaseOutCubic(p float64) float64 {
	return 1 - math.Pow(1-p, 3)
}

// zoom is the distance state shared by both backends. Callers hold mu.
type zoom struct {
	mu  sync.Mutex
	cfg Config

	distance float64
	target   float64
	flight   *flight

	listeners []DistanceListener
}

func (z *zoom) init(cfg Config) {
	z.cfg = cfg
	z.distance = cfg.InitialDistance
	z.target = cfg.InitialDistance
}

func (z *zoom) clamp(d float64) float64 {
	return math.Max(z.cfg.MinDistance, math.Min(z.cfg.MaxDistance, d))
}

func (z *zoom) setTargetLocked(d float64) {
	z.flight = nil
	z.target = z.clamp(d)
}

func (z *zoom) startFlightLocked() {
	z.flight = &flight{steps: z.cfg.FlySteps, from: z.distance, to: z.clamp(z.cfg.FlyDistance)}
}

// stepLocked advances the distance by one frame and returns the new value
// and whether it changed.
func (z *zoom) stepLocked() (float64, bool) {
	prev := z.distance
	if f := z.flight; f != nil {
		f.step++
		f.eased = EaseOutCubic(float64(f.step) / float64(f.steps))
		z.distance = f.from + (f.to-f.from)*f.eased
		z.target = z.distance
		if f.step >= f.steps {
			z.distance, z.target = f.to, f.to
			z.flight = nil
		}
	} else {
		z.distance = damp(z.distance, z.target, z.cfg.Damping)
	}
	return z.distance, z.distance != prev
}

func (z *zoom) listenersLocked() []DistanceListener {
	return append([]DistanceListener(nil), z.listeners...)
}

// OnDistanceChange registers a listener.
func (z *zoom) OnDistanceChange(fn DistanceListener) {
	if fn == nil {
		return
	}
	z.mu.Lock()
	z.listeners = append(z.listeners, fn)
	z.mu.Unlock()
}

// Distance returns the current smoothed distance.
func (z *zoom) Distance() float64 {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.distance
}

func notify(listeners []DistanceListener, d float64) {
	for _, fn := range listeners {
		fn(d)
	}
}

func damp(current, target, factor float64) float64 {
	next := current + (target-current)*factor
	if math.Abs(target-next) < snapEpsilon {
		return target
	}
	return next
}

// wrapPi folds an angle into (-π, π].
func wrapPi(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

func touchSpread(ts []Touch) float64 {
	if len(ts) < 2 {
		return 0
	}
	return math.Hypot(ts[0].X-ts[1].X, ts[0].Y-ts[1].Y)
}
