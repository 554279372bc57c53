package assets

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/globeview/core"
)

// Sphere is a UV-sphere tessellation of the globe.
type Sphere struct {
	Segments  int          `json:"segments"`
	Positions []core.Vec3  `json:"-"`
	UVs       [][2]float64 `json:"-"`
	Indices   []uint32     `json:"-"`
}

// Source implements Resource.
func (s *Sphere) Source() string { return SphereSource(s.Segments) }

// VertexCount returns the number of vertices.
func (s *Sphere) VertexCount() int { return len(s.Positions) }

// TriangleCount returns the number of triangles.
func (s *Sphere) TriangleCount() int { return len(s.Indices) / 3 }

// BuildSphere tessellates a sphere of the given radius with segments
// subdivisions in both latitude and longitude. Vertices are laid out row
// by row from the north pole, with u following longitude.
func BuildSphere(segments int, radius float64) *Sphere {
	if segments < 3 {
		segments = 3
	}
	rows := segments
	cols := segments
	s := &Sphere{
		Segments:  segments,
		Positions: make([]core.Vec3, 0, (rows+1)*(cols+1)),
		UVs:       make([][2]float64, 0, (rows+1)*(cols+1)),
		Indices:   make([]uint32, 0, rows*cols*6),
	}
	for r := 0; r <= rows; r++ {
		v := float64(r) / float64(rows)
		lat := 90 - v*180
		for c := 0; c <= cols; c++ {
			u := float64(c) / float64(cols)
			lon := u*360 - 180
			s.Positions = append(s.Positions, core.ToCartesian(lat, lon, radius))
			s.UVs = append(s.UVs, [2]float64{u, 1 - v})
		}
	}
	stride := uint32(cols + 1)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a := uint32(r)*stride + uint32(c)
			b := a + stride
			// Degenerate triangles at the poles are skipped.
			if r != 0 {
				s.Indices = append(s.Indices, a, b, a+1)
			}
			if r != rows-1 {
				s.Indices = append(s.Indices, b, b+1, a+1)
			}
		}
	}
	return s
}

// SphereSource names the tessellation with the given segment count.
func SphereSource(segments int) string { return fmt.Sprintf("sphere:%d", segments) }

// SphereLoader builds spheres on demand from "sphere:N" sources, for
// families that load geometry lazily instead of prebuilding it.
type SphereLoader struct {
	Radius float64
}

// Load implements Loader.
func (l SphereLoader) Load(ctx context.Context, source string) (Resource, error) {
	raw, ok := strings.CutPrefix(source, "sphere:")
	if !ok {
		return nil, fmt.Errorf("assets: not a sphere source: %q", source)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 3 {
		return nil, fmt.Errorf("assets: bad sphere segments in %q", source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildSphere(n, l.Radius), nil
}

// SphereRadiusError returns the largest deviation of any vertex from the
// requested radius.
func SphereRadiusError(s *Sphere, radius float64) float64 {
	worst := 0.0
	for _, p := range s.Positions {
		worst = math.Max(worst, math.Abs(p.Norm()-radius))
	}
	return worst
}
