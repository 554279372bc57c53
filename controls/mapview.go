package controls

import (
	"math"
	"time"

	"github.com/signalsfoundry/globeview/core"
)

// MaxMapLat bounds panning on the flat map.
const MaxMapLat = 85.0

// MapView pans an equirectangular map under the camera. It shares the
// zoom contract of Orbit.
type MapView struct {
	zoom

	center, targetCenter core.LatLon

	dragging     bool
	lastX, lastY float64
	pinch        float64
}

var _ Controls = (*MapView)(nil)

// NewMapView returns map controls centred on (0, 0).
func NewMapView(cfg Config) *MapView {
	m := &MapView{}
	m.zoom.init(cfg.withDefaults())
	return m
}

// degPerPixelLocked scales panning with zoom so the map tracks the pointer.
func (m *MapView) degPerPixelLocked() float64 {
	return core.RadToDeg(m.cfg.RotationSpeed) * m.distance / m.cfg.InitialDistance
}

func (m *MapView) panLocked(dx, dy float64) {
	k := m.degPerPixelLocked()
	m.targetCenter.Lon -= dx * k
	m.targetCenter.Lat = clampLat(m.targetCenter.Lat + dy*k)
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxMapLat, math.Min(MaxMapLat, lat))
}

// HandleInput applies one input event.
func (m *MapView) HandleInput(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case PointerDown:
		m.cancelFlightLocked()
		m.dragging = true
		m.lastX, m.lastY = ev.X, ev.Y
	case PointerMove:
		if m.dragging {
			m.panLocked(ev.X-m.lastX, ev.Y-m.lastY)
			m.lastX, m.lastY = ev.X, ev.Y
		}
	case PointerUp:
		m.dragging = false
	case Wheel:
		m.setTargetLocked(m.target + ev.DeltaY*m.cfg.WheelFactor*m.cfg.ZoomSpeed)
	case TouchStart:
		m.cancelFlightLocked()
		switch len(ev.Touches) {
		case 1:
			m.dragging = true
			m.pinch = 0
			m.lastX, m.lastY = ev.Touches[0].X, ev.Touches[0].Y
		case 2:
			m.dragging = false
			m.pinch = touchSpread(ev.Touches)
		}
	case TouchMove:
		switch {
		case len(ev.Touches) == 1 && m.dragging:
			t := ev.Touches[0]
			m.panLocked(t.X-m.lastX, t.Y-m.lastY)
			m.lastX, m.lastY = t.X, t.Y
		case len(ev.Touches) == 2 && m.pinch > 0:
			if spread := touchSpread(ev.Touches); spread > 0 {
				m.setTargetLocked(m.target * m.pinch / spread)
				m.pinch = spread
			}
		}
	case TouchEnd:
		m.dragging = false
		m.pinch = 0
	}
}

// cancelFlightLocked stops a fly-to where it is.
func (m *MapView) cancelFlightLocked() {
	if m.flight != nil && m.flight.aimed {
		m.targetCenter = m.center
	}
	m.flight = nil
}

// Update implements Controls. Longitude is damped along the short arc.
func (m *MapView) Update(time.Time) bool {
	m.mu.Lock()
	prev := m.center
	f := m.flight
	d, changed := m.stepLocked()
	if f != nil && f.aimed {
		m.center = core.LatLon{Lat: f.angle(0), Lon: core.NormalizeLon(f.angle(1))}
	} else {
		dLon := wrapDeg(m.targetCenter.Lon - m.center.Lon)
		m.center.Lon = core.NormalizeLon(damp(m.center.Lon, m.center.Lon+dLon, m.cfg.Damping))
		m.center.Lat = damp(m.center.Lat, m.targetCenter.Lat, m.cfg.Damping)
	}
	listeners := m.listenersLocked()
	moved := changed || m.center != prev
	m.mu.Unlock()

	if changed {
		notify(listeners, d)
	}
	return moved
}

func wrapDeg(d float64) float64 {
	return core.RadToDeg(wrapPi(core.DegToRad(d)))
}

// ZoomIn implements Controls.
func (m *MapView) ZoomIn() {
	m.mu.Lock()
	m.setTargetLocked(m.target - m.cfg.ButtonStep)
	m.mu.Unlock()
}

// ZoomOut implements Controls.
func (m *MapView) ZoomOut() {
	m.mu.Lock()
	m.setTargetLocked(m.target + m.cfg.ButtonStep)
	m.mu.Unlock()
}

// Reset implements Controls.
func (m *MapView) Reset() {
	m.mu.Lock()
	m.targetCenter = core.LatLon{}
	m.setTargetLocked(m.cfg.InitialDistance)
	m.mu.Unlock()
}

// AnimateToLocation implements Controls.
func (m *MapView) AnimateToLocation(lat, lon float64) {
	m.mu.Lock()
	m.dragging = false
	m.targetCenter = core.LatLon{Lat: clampLat(lat), Lon: core.NormalizeLon(lon)}
	m.startFlightLocked()
	m.flight.aim(
		[2]float64{m.center.Lat, m.center.Lon},
		[2]float64{m.targetCenter.Lat, m.center.Lon + wrapDeg(m.targetCenter.Lon-m.center.Lon)},
	)
	m.mu.Unlock()
}

// CurrentOrientation reports the map centre in the same terms as the
// sphere backend.
func (m *MapView) CurrentOrientation() Orientation {
	m.mu.Lock()
	c := m.center
	m.mu.Unlock()
	yaw, pitch := facing(c.Lat, c.Lon)
	o := orientationFor(yaw, pitch)
	o.Center = c
	return o
}

// Center returns the current map centre.
func (m *MapView) Center() core.LatLon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}
