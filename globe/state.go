package globe

import (
	"time"

	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/borders"
	"github.com/signalsfoundry/globeview/controls"
	"github.com/signalsfoundry/globeview/core"
	"github.com/signalsfoundry/globeview/model"
)

// FrameState is everything a client needs to draw one frame.
type FrameState struct {
	Frame         uint64               `json:"frame"`
	Time          time.Time            `json:"time"`
	Moved         bool                 `json:"moved"`
	Distance      float64              `json:"distance"`
	Orientation   controls.Orientation `json:"orientation"`
	Texture       TextureState         `json:"texture"`
	Geometry      GeometryState        `json:"geometry"`
	Borders       BorderState          `json:"borders"`
	Layers        map[string]string    `json:"layers"`
	CloudRotation float64              `json:"cloudRotation"`
	MarkerScale   float64              `json:"markerScale"`
	Markers       []MarkerState        `json:"markers"`
}

// TextureState reports the displayed and wanted texture levels.
type TextureState struct {
	Level  string `json:"level"`
	Target string `json:"target"`
	Source string `json:"source,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// GeometryState reports the displayed sphere tessellation.
type GeometryState struct {
	Level     string `json:"level"`
	Segments  int    `json:"segments"`
	Vertices  int    `json:"vertices"`
	Triangles int    `json:"triangles"`
}

// BorderState reports the overlay.
type BorderState struct {
	Visible bool                 `json:"visible"`
	Active  string               `json:"active,omitempty"`
	Tiers   []borders.TierStatus `json:"tiers"`
}

// MarkerState is one marker as rendered this frame.
type MarkerState struct {
	Name     string         `json:"name"`
	Country  string         `json:"country"`
	Category model.Category `json:"type"`
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
	Position core.Vec3      `json:"position"`
	Size     float64        `json:"size"`
	Color    uint32         `json:"color"`
	HasNews  bool           `json:"hasNews,omitempty"`
}

func (g *Globe) stateLocked(now time.Time) FrameState {
	s := FrameState{
		Frame:         g.frame,
		Time:          now,
		Distance:      g.controls.Distance(),
		Orientation:   g.controls.CurrentOrientation(),
		CloudRotation: g.cloudRotation,
		MarkerScale:   g.markers.Scale(),
		Layers:        make(map[string]string, len(assets.Layers())),
	}

	s.Texture.Target = g.wantTexture.String()
	if tex := g.activeTexture.Load(); tex != nil {
		s.Texture.Level = g.texture.Current().String()
		s.Texture.Source = tex.URI
		s.Texture.Width, s.Texture.Height = tex.Width, tex.Height
	}
	if sphere := g.activeGeometry.Load(); sphere != nil {
		s.Geometry = GeometryState{
			Level:     g.geo.Current().String(),
			Segments:  sphere.Segments,
			Vertices:  sphere.VertexCount(),
			Triangles: sphere.TriangleCount(),
		}
	}

	s.Borders.Visible = g.borders.Visible()
	s.Borders.Tiers = g.borders.Status()
	if tier := g.borders.Active(); tier != nil {
		s.Borders.Active = tier.Level.String()
	}

	for _, layer := range assets.Layers() {
		s.Layers[string(layer)] = g.layers.State(layer).String()
	}

	withNews := make(map[string]bool)
	if g.news != nil {
		for _, name := range g.news.MarkersWithNews() {
			withNews[name] = true
		}
	}
	list := g.markers.List()
	s.Markers = make([]MarkerState, 0, len(list))
	for _, m := range list {
		s.Markers = append(s.Markers, MarkerState{
			Name:     m.Name,
			Country:  m.Country,
			Category: m.Category,
			Lat:      m.Lat,
			Lon:      m.Lon,
			Position: m.Position(),
			Size:     g.markers.RenderSize(m, now),
			Color:    model.VisualFor(m.Category).Color,
			HasNews:  withNews[m.Name],
		})
	}
	return s
}
