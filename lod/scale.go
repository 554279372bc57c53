package lod

import "errors"

// ErrDegenerateScaleRange is returned when the distance range has zero
// width. Callers log it and keep the previous scale.
var ErrDegenerateScaleRange = errors.New("lod: marker scale range has equal min and max distance")

// ScaleRange maps camera distance to a continuous marker scale factor.
// At MinDistance markers render at MinScale; at MaxDistance and beyond at 1.
type ScaleRange struct {
	MinDistance float64
	MaxDistance float64
	MinScale    float64
}

// DefaultScaleRange matches the camera's zoom limits.
func DefaultScaleRange() ScaleRange {
	return ScaleRange{MinDistance: 0.8, MaxDistance: 6, MinScale: 0.4}
}

// Scale returns the marker scale for distance d. Distances outside the
// range are clamped, never extrapolated.
func (r ScaleRange) Scale(d float64) (float64, error) {
	if r.MinDistance == r.MaxDistance {
		return 0, ErrDegenerateScaleRange
	}
	t := (d - r.MinDistance) / (r.MaxDistance - r.MinDistance)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return r.MinScale + t*(1-r.MinScale), nil
}
