package borders

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/core"
	"github.com/signalsfoundry/globeview/internal/fetch"
)

// Radius lifts border lines just above the globe surface.
const Radius = 1.001

// ErrNoLines is returned when a feature collection yields no usable rings.
var ErrNoLines = errors.New("borders: no polygon outlines in feature collection")

// Polyline is a closed outline in scene space.
type Polyline []core.Vec3

// Lines is the parsed content of one border source.
type Lines struct {
	URI      string
	Polyline []Polyline
	Features int
}

// Source implements assets.Resource.
func (l *Lines) Source() string { return l.URI }

// Points returns the total vertex count.
func (l *Lines) Points() int {
	n := 0
	for _, p := range l.Polyline {
		n += len(p)
	}
	return n
}

// Parse extracts the outer ring of every Polygon and of every polygon in a
// MultiPolygon. Holes are dropped and rings with fewer than two points are
// skipped.
func Parse(data []byte, radius float64) ([]Polyline, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("borders: decode geojson: %w", err)
	}
	var lines []Polyline
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			lines = appendOuter(lines, g, radius)
		case orb.MultiPolygon:
			for _, poly := range g {
				lines = appendOuter(lines, poly, radius)
			}
		}
	}
	if len(lines) == 0 {
		return nil, len(fc.Features), ErrNoLines
	}
	return lines, len(fc.Features), nil
}

func appendOuter(lines []Polyline, poly orb.Polygon, radius float64) []Polyline {
	if len(poly) == 0 || len(poly[0]) < 2 {
		return lines
	}
	ring := poly[0]
	out := make(Polyline, len(ring))
	for i, p := range ring {
		out[i] = core.ToCartesian(p.Lat(), p.Lon(), radius)
	}
	return append(lines, out)
}

// Loader fetches and parses a GeoJSON border source.
type Loader struct {
	Fetcher fetch.Fetcher
	Radius  float64
}

// Load implements assets.Loader.
func (l *Loader) Load(ctx context.Context, source string) (assets.Resource, error) {
	data, err := l.Fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	radius := l.Radius
	if radius == 0 {
		radius = Radius
	}
	lines, features, err := Parse(data, radius)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return &Lines{URI: source, Polyline: lines, Features: features}, nil
}
