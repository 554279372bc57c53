// Package controls turns user input into camera distance and globe
// orientation. Both backends smooth toward their targets every frame and
// report every distance change to registered listeners.
package controls

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/globeview/core"
)

// EventType names an input event.
type EventType string

const (
	PointerDown EventType = "pointerdown"
	PointerMove EventType = "pointermove"
	PointerUp   EventType = "pointerup"
	Wheel       EventType = "wheel"
	TouchStart  EventType = "touchstart"
	TouchMove   EventType = "touchmove"
	TouchEnd    EventType = "touchend"
	Resize      EventType = "resize"
)

// Touch is one active touch point in client pixels.
type Touch struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is a single input event in client pixels.
type Event struct {
	Type    EventType `json:"type"`
	X       float64   `json:"x,omitempty"`
	Y       float64   `json:"y,omitempty"`
	DeltaY  float64   `json:"deltaY,omitempty"`
	Touches []Touch   `json:"touches,omitempty"`
	Width   float64   `json:"width,omitempty"`
	Height  float64   `json:"height,omitempty"`
}

// Orientation is the globe rotation as seen by the camera. Yaw rotates
// about +Y, then Pitch about +X.
type Orientation struct {
	Yaw    float64     `json:"yaw"`
	Pitch  float64     `json:"pitch"`
	Quat   [4]float64  `json:"quat"` // x, y, z, w
	Center core.LatLon `json:"center"`
}

// DistanceListener is called with every new camera distance.
type DistanceListener func(distance float64)

// Controls is implemented by every view backend.
type Controls interface {
	// Update advances damping and any flight by one frame and reports
	// whether the camera moved.
	Update(now time.Time) bool
	ZoomIn()
	ZoomOut()
	Reset()
	// AnimateToLocation flies the camera so lat/lon faces the viewer.
	AnimateToLocation(lat, lon float64)
	CurrentOrientation() Orientation
	HandleInput(ev Event)
	Distance() float64
	OnDistanceChange(fn DistanceListener)
}

// Config holds the tuning constants shared by both backends.
type Config struct {
	MinDistance     float64
	MaxDistance     float64
	InitialDistance float64
	RotationSpeed   float64 // radians per pixel
	ZoomSpeed       float64
	WheelFactor     float64
	ButtonStep      float64
	Damping         float64
	FlySteps        int
	FlyDistance     float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MinDistance:     0.8,
		MaxDistance:     6,
		InitialDistance: 3,
		RotationSpeed:   0.005,
		ZoomSpeed:       0.2,
		WheelFactor:     0.001,
		ButtonStep:      0.5,
		Damping:         0.1,
		FlySteps:        60,
		FlyDistance:     1.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinDistance <= 0 {
		c.MinDistance = d.MinDistance
	}
	if c.MaxDistance <= c.MinDistance {
		c.MaxDistance = d.MaxDistance
	}
	if c.InitialDistance <= 0 {
		c.InitialDistance = d.InitialDistance
	}
	if c.RotationSpeed <= 0 {
		c.RotationSpeed = d.RotationSpeed
	}
	if c.ZoomSpeed <= 0 {
		c.ZoomSpeed = d.ZoomSpeed
	}
	if c.WheelFactor <= 0 {
		c.WheelFactor = d.WheelFactor
	}
	if c.ButtonStep <= 0 {
		c.ButtonStep = d.ButtonStep
	}
	if c.Damping <= 0 || c.Damping > 1 {
		c.Damping = d.Damping
	}
	if c.FlySteps <= 0 {
		c.FlySteps = d.FlySteps
	}
	if c.FlyDistance <= 0 {
		c.FlyDistance = d.FlyDistance
	}
	return c
}

// orientationFor builds the rotation R = Rx(pitch)·Ry(yaw) and reports the
// point on the globe that faces a camera on +Z.
func orientationFor(yaw, pitch float64) Orientation {
	q := mgl64.QuatRotate(pitch, mgl64.Vec3{1, 0, 0}).Mul(mgl64.QuatRotate(yaw, mgl64.Vec3{0, 1, 0}))
	front := q.Inverse().Rotate(mgl64.Vec3{0, 0, 1})
	return Orientation{
		Yaw:    yaw,
		Pitch:  pitch,
		Quat:   [4]float64{q.V[0], q.V[1], q.V[2], q.W},
		Center: core.ToLatLon(core.Vec3{X: front[0], Y: front[1], Z: front[2]}, 1),
	}
}

// facing returns the yaw and pitch that bring lat/lon in front of the
// camera.
func facing(lat, lon float64) (yaw, pitch float64) {
	return -core.DegToRad(lon + 90), core.DegToRad(lat)
}
