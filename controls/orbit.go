package controls

import (
	"math"
	"time"
)

// Orbit rotates the globe under a fixed camera on +Z.
type Orbit struct {
	zoom

	yaw, pitch             float64
	targetYaw, targetPitch float64

	dragging     bool
	lastX, lastY float64
	pinch        float64
	width        float64
	height       float64
}

var _ Controls = (*Orbit)(nil)

// NewOrbit returns sphere controls at the initial distance facing lat/lon
// (0, -90).
func NewOrbit(cfg Config) *Orbit {
	o := &Orbit{}
	o.zoom.init(cfg.withDefaults())
	return o
}

// HandleInput applies one input event.
func (o *Orbit) HandleInput(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Type {
	case PointerDown:
		o.cancelFlightLocked()
		o.dragging = true
		o.lastX, o.lastY = ev.X, ev.Y
	case PointerMove:
		if o.dragging {
			o.rotateLocked(ev.X-o.lastX, ev.Y-o.lastY)
			o.lastX, o.lastY = ev.X, ev.Y
		}
	case PointerUp:
		o.dragging = false
	case Wheel:
		o.setTargetLocked(o.target + ev.DeltaY*o.cfg.WheelFactor*o.cfg.ZoomSpeed)
	case TouchStart:
		o.cancelFlightLocked()
		switch len(ev.Touches) {
		case 1:
			o.dragging = true
			o.pinch = 0
			o.lastX, o.lastY = ev.Touches[0].X, ev.Touches[0].Y
		case 2:
			o.dragging = false
			o.pinch = touchSpread(ev.Touches)
		}
	case TouchMove:
		switch {
		case len(ev.Touches) == 1 && o.dragging:
			t := ev.Touches[0]
			o.rotateLocked(t.X-o.lastX, t.Y-o.lastY)
			o.lastX, o.lastY = t.X, t.Y
		case len(ev.Touches) == 2 && o.pinch > 0:
			spread := touchSpread(ev.Touches)
			if spread > 0 {
				// Fingers apart (spread grows) moves the camera closer.
				o.setTargetLocked(o.target * o.pinch / spread)
				o.pinch = spread
			}
		}
	case TouchEnd:
		o.dragging = false
		o.pinch = 0
	case Resize:
		o.width, o.height = ev.Width, ev.Height
	}
}

// cancelFlightLocked stops a fly-to where it is.
func (o *Orbit) cancelFlightLocked() {
	if o.flight != nil && o.flight.aimed {
		o.targetYaw, o.targetPitch = o.yaw, o.pitch
	}
	o.flight = nil
}

func (o *Orbit) rotateLocked(dx, dy float64) {
	o.targetYaw += dx * o.cfg.RotationSpeed
	o.targetPitch = clampPitch(o.targetPitch + dy*o.cfg.RotationSpeed)
}

func clampPitch(p float64) float64 {
	return math.Max(-math.Pi/2, math.Min(math.Pi/2, p))
}

// Update implements Controls.
func (o *Orbit) Update(time.Time) bool {
	o.mu.Lock()
	prevYaw, prevPitch := o.yaw, o.pitch
	f := o.flight
	d, changed := o.stepLocked()
	if f != nil && f.aimed {
		o.yaw, o.pitch = f.angle(0), f.angle(1)
	} else {
		o.yaw = damp(o.yaw, o.targetYaw, o.cfg.Damping)
		o.pitch = damp(o.pitch, o.targetPitch, o.cfg.Damping)
	}
	listeners := o.listenersLocked()
	moved := changed || o.yaw != prevYaw || o.pitch != prevPitch
	o.mu.Unlock()

	if changed {
		notify(listeners, d)
	}
	return moved
}

// ZoomIn moves the target distance closer by one button step.
func (o *Orbit) ZoomIn() {
	o.mu.Lock()
	o.setTargetLocked(o.target - o.cfg.ButtonStep)
	o.mu.Unlock()
}

// ZoomOut moves the target distance away by one button step.
func (o *Orbit) ZoomOut() {
	o.mu.Lock()
	o.setTargetLocked(o.target + o.cfg.ButtonStep)
	o.mu.Unlock()
}

// Reset returns to zero rotation at the initial distance.
func (o *Orbit) Reset() {
	o.mu.Lock()
	o.targetYaw, o.targetPitch = 0, 0
	o.setTargetLocked(o.cfg.InitialDistance)
	o.mu.Unlock()
}

// AnimateToLocation implements Controls. Distance, yaw and pitch follow
// the same cubic ease-out flight. Yaw takes the short way round.
func (o *Orbit) AnimateToLocation(lat, lon float64) {
	yaw, pitch := facing(lat, lon)
	o.mu.Lock()
	o.dragging = false
	o.targetYaw = o.yaw + wrapPi(yaw-o.yaw)
	o.targetPitch = clampPitch(pitch)
	o.startFlightLocked()
	o.flight.aim([2]float64{o.yaw, o.pitch}, [2]float64{o.targetYaw, o.targetPitch})
	o.mu.Unlock()
}

// CurrentOrientation implements Controls.
func (o *Orbit) CurrentOrientation() Orientation {
	o.mu.Lock()
	yaw, pitch := o.yaw, o.pitch
	o.mu.Unlock()
	return orientationFor(yaw, pitch)
}

// Flying reports whether a fly-to is in progress.
func (o *Orbit) Flying() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flight != nil
}
