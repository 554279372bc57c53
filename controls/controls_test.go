package controls

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/globeview/core"
)

func settle(c Controls, frames int) {
	now := time.Unix(0, 0)
	for i := 0; i < frames; i++ {
		now = now.Add(16 * time.Millisecond)
		c.Update(now)
	}
}

func TestEaseOutCubic(t *testing.T) {
	if EaseOutCubic(0) != 0 || EaseOutCubic(1) != 1 {
		t.Fatalf("ease endpoints wrong")
	}
	if got := EaseOutCubic(0.5); math.Abs(got-0.875) > 1e-12 {
		t.Fatalf("EaseOutCubic(0.5) = %v", got)
	}
}

func TestDampingConvergesAndNotifies(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	var seen []float64
	o.OnDistanceChange(func(d float64) { seen = append(seen, d) })

	o.ZoomIn()
	o.ZoomIn()
	settle(o, 300)

	if got := o.Distance(); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("distance = %v, want 2.0", got)
	}
	if len(seen) < 10 {
		t.Fatalf("expected smoothed intermediate notifications, got %d", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] > seen[i-1] {
			t.Fatalf("distance moved away from target at step %d", i)
		}
	}
	n := len(seen)
	settle(o, 10)
	if len(seen) != n {
		t.Fatalf("listener called after the camera settled")
	}
}

func TestZoomClamps(t *testing.T) {
	cfg := DefaultConfig()
	o := NewOrbit(cfg)
	for i := 0; i < 20; i++ {
		o.ZoomIn()
	}
	o.HandleInput(Event{Type: Wheel, DeltaY: -100000})
	settle(o, 400)
	if o.Distance() != cfg.MinDistance {
		t.Fatalf("distance = %v, want clamp to %v", o.Distance(), cfg.MinDistance)
	}
	o.HandleInput(Event{Type: Wheel, DeltaY: 1e9})
	settle(o, 400)
	if o.Distance() != cfg.MaxDistance {
		t.Fatalf("distance = %v, want clamp to %v", o.Distance(), cfg.MaxDistance)
	}
}

func TestDragRotatesAndClampsPitch(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.HandleInput(Event{Type: PointerDown, X: 100, Y: 100})
	o.HandleInput(Event{Type: PointerMove, X: 200, Y: 10000})
	o.HandleInput(Event{Type: PointerUp})
	o.HandleInput(Event{Type: PointerMove, X: 900, Y: 900})
	settle(o, 400)

	or := o.CurrentOrientation()
	if math.Abs(or.Yaw-0.5) > 1e-6 {
		t.Fatalf("yaw = %v, want 0.5", or.Yaw)
	}
	if math.Abs(or.Pitch-math.Pi/2) > 1e-6 {
		t.Fatalf("pitch = %v, want clamp at pi/2", or.Pitch)
	}
}

func TestPinchZoom(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.HandleInput(Event{Type: TouchStart, Touches: []Touch{{X: 0, Y: 0}, {X: 100, Y: 0}}})
	o.HandleInput(Event{Type: TouchMove, Touches: []Touch{{X: 0, Y: 0}, {X: 200, Y: 0}}})
	o.HandleInput(Event{Type: TouchEnd})
	settle(o, 400)
	if got := o.Distance(); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("pinch-out distance = %v, want 1.5", got)
	}
}

func TestAnimateToLocationFacesTarget(t *testing.T) {
	cases := []core.LatLon{
		{Lat: 48.8566, Lon: 2.3522},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 40.7128, Lon: -74.006},
		{Lat: 0, Lon: 179},
	}
	for _, target := range cases {
		o := NewOrbit(DefaultConfig())
		var last float64
		o.OnDistanceChange(func(d float64) { last = d })
		o.AnimateToLocation(target.Lat, target.Lon)
		if !o.Flying() {
			t.Fatalf("expected flight")
		}
		settle(o, 400)
		if o.Flying() {
			t.Fatalf("flight did not finish")
		}
		if last != 1.5 || o.Distance() != 1.5 {
			t.Fatalf("distance after flight = %v (listener %v)", o.Distance(), last)
		}
		c := o.CurrentOrientation().Center
		if math.Abs(c.Lat-target.Lat) > 1e-3 || math.Abs(core.NormalizeLon(c.Lon-target.Lon)) > 1e-3 {
			t.Fatalf("center = %+v, want %+v", c, target)
		}
	}
}

func TestFlightFollowsEaseCurve(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	var seen []float64
	o.OnDistanceChange(func(d float64) { seen = append(seen, d) })
	o.AnimateToLocation(10, 10)
	settle(o, 60)
	if len(seen) != 60 {
		t.Fatalf("flight produced %d distance updates, want 60", len(seen))
	}
	want := 3 + (1.5-3)*EaseOutCubic(30.0/60.0)
	if math.Abs(seen[29]-want) > 1e-12 {
		t.Fatalf("midpoint distance = %v, want %v", seen[29], want)
	}
}

func TestFlightEasesOrientation(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.AnimateToLocation(10, 10)
	toYaw, toPitch := o.targetYaw, o.targetPitch

	settle(o, 30)
	p := EaseOutCubic(30.0 / 60.0)
	or := o.CurrentOrientation()
	if math.Abs(or.Yaw-toYaw*p) > 1e-12 || math.Abs(or.Pitch-toPitch*p) > 1e-12 {
		t.Fatalf("mid-flight orientation = (%v, %v), want (%v, %v)", or.Yaw, or.Pitch, toYaw*p, toPitch*p)
	}

	settle(o, 30)
	or = o.CurrentOrientation()
	if or.Yaw != toYaw || or.Pitch != toPitch {
		t.Fatalf("orientation after flight = (%v, %v), want (%v, %v)", or.Yaw, or.Pitch, toYaw, toPitch)
	}
}

func TestInterruptedFlightHoldsOrientation(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.AnimateToLocation(10, 10)
	settle(o, 10)
	held := o.CurrentOrientation()

	o.HandleInput(Event{Type: PointerDown, X: 1, Y: 1})
	settle(o, 50)
	if or := o.CurrentOrientation(); or.Yaw != held.Yaw || or.Pitch != held.Pitch {
		t.Fatalf("orientation kept moving after the flight was interrupted: %+v vs %+v", or, held)
	}
}

func TestInteractionReplacesFlight(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.AnimateToLocation(10, 10)
	settle(o, 5)
	o.HandleInput(Event{Type: PointerDown, X: 1, Y: 1})
	if o.Flying() {
		t.Fatalf("pointer down should cancel the flight")
	}
	o.AnimateToLocation(20, 20)
	o.ZoomOut()
	if o.Flying() {
		t.Fatalf("zoom should cancel the flight")
	}
}

func TestResetReturnsHome(t *testing.T) {
	o := NewOrbit(DefaultConfig())
	o.AnimateToLocation(45, 45)
	settle(o, 200)
	o.Reset()
	settle(o, 400)
	or := o.CurrentOrientation()
	if or.Yaw != 0 || or.Pitch != 0 || o.Distance() != 3 {
		t.Fatalf("after reset: %+v distance %v", or, o.Distance())
	}
	if math.Abs(or.Center.Lat) > 1e-9 || math.Abs(or.Center.Lon+90) > 1e-9 {
		t.Fatalf("home center = %+v, want (0,-90)", or.Center)
	}
}

func TestMapViewContract(t *testing.T) {
	var c Controls = NewMapView(DefaultConfig())
	var last float64
	c.OnDistanceChange(func(d float64) { last = d })

	c.AnimateToLocation(35.6762, 139.6503)
	settle(c, 400)
	center := c.CurrentOrientation().Center
	if math.Abs(center.Lat-35.6762) > 1e-3 || math.Abs(center.Lon-139.6503) > 1e-3 {
		t.Fatalf("map center = %+v", center)
	}
	if last != 1.5 {
		t.Fatalf("map flight distance = %v", last)
	}

	// Short way round across the antimeridian.
	c.AnimateToLocation(0, -170)
	c.Update(time.Time{})
	if lon := c.(*MapView).Center().Lon; lon < 139 && lon > -170 {
		t.Fatalf("map panned the long way: lon %v", lon)
	}

	c.HandleInput(Event{Type: PointerDown, X: 0, Y: 0})
	c.HandleInput(Event{Type: PointerMove, X: 0, Y: 1e6})
	settle(c, 400)
	if got := c.(*MapView).Center().Lat; got != MaxMapLat {
		t.Fatalf("lat = %v, want clamp at %v", got, MaxMapLat)
	}
}
