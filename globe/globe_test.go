package globe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/controls"
	"github.com/signalsfoundry/globeview/internal/observability"
	"github.com/signalsfoundry/globeview/lod"
	"github.com/signalsfoundry/globeview/model"
)

const bordersJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"Square"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}
]}`

// fakeFetcher serves in-memory assets. A gated URI blocks until its gate
// is closed.
type fakeFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	gates map[string]chan struct{}
	calls map[string]int
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	img := pngBytes(t)
	return &fakeFetcher{
		files: map[string][]byte{
			"low.png":     img,
			"medium.png":  img,
			"high.png":    img,
			"bump.png":    img,
			"clouds.png":  img,
			"borders-110": []byte(bordersJSON),
			"borders-50":  []byte(bordersJSON),
		},
		gates: make(map[string]chan struct{}),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) gate(uri string) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[uri] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	f.calls[uri]++
	gate := f.gates[uri]
	data, ok := f.files[uri]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: not found", uri)
	}
	return data, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 2))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func testMarkers() []model.Marker {
	return []model.Marker{
		{Name: "Paris", Country: "France", Lat: 48.8566, Lon: 2.3522, Category: model.CategoryCapital},
		{Name: "Lyon", Country: "France", Lat: 45.764, Lon: 4.8357, Category: model.CategoryMajor},
		{Name: "Nairobi", Country: "Kenya", Lat: -1.2921, Lon: 36.8219, Category: model.CategoryCapital},
	}
}

func newTestGlobe(t *testing.T, f *fakeFetcher, initial float64, mutate func(*Config)) (*Globe, *observability.GlobeCollector) {
	t.Helper()
	metrics, err := observability.NewGlobeCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("collector: %v", err)
	}
	cfg := Config{
		Controls: controls.NewOrbit(controls.Config{InitialDistance: initial}),
		Fetcher:  f,
		Textures: map[lod.TextureQuality][]string{
			lod.TextureLow:    {"low.png"},
			lod.TextureMedium: {"missing.png", "medium.png"},
			lod.TextureHigh:   {"high.png"},
		},
		Layers: map[assets.Layer][]string{
			assets.LayerBump:   {"bump.png"},
			assets.LayerClouds: {"clouds.png"},
			assets.LayerNight:  {"night.png"},
		},
		Borders: map[lod.BorderLevel][]string{
			lod.BorderLow:    {"borders-110"},
			lod.BorderMedium: {"borders-50"},
		},
		Markers: testMarkers(),
		Metrics: metrics,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(g.Close)
	return g, metrics
}

func TestInitAppliesLevelsForDistance(t *testing.T) {
	f := newFakeFetcher(t)
	g, metrics := newTestGlobe(t, f, 3, nil)

	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g.Wait()

	s := g.Snapshot()
	if s.Texture.Level != "medium" || s.Texture.Source != "medium.png" || s.Texture.Width != 4 {
		t.Fatalf("texture = %+v", s.Texture)
	}
	if s.Geometry.Level != "medium" || s.Geometry.Segments != 128 {
		t.Fatalf("geometry = %+v", s.Geometry)
	}
	if s.Borders.Active != "medium" || !s.Borders.Visible {
		t.Fatalf("borders = %+v", s.Borders)
	}
	if s.Layers["bump"] != "loaded" || s.Layers["clouds"] != "loaded" || s.Layers["night"] != "failed" || s.Layers["specular"] != "unloaded" {
		t.Fatalf("layers = %v", s.Layers)
	}
	wantScale := 0.4 + (3-0.8)/(6-0.8)*0.6
	if math.Abs(s.MarkerScale-wantScale) > 1e-9 {
		t.Fatalf("marker scale = %v, want %v", s.MarkerScale, wantScale)
	}
	if got := testutil.ToFloat64(metrics.LODSwitches.WithLabelValues("texture", "medium")); got != 1 {
		t.Fatalf("texture medium switches = %v", got)
	}
	if got := testutil.ToFloat64(metrics.CameraDistance); got != 3 {
		t.Fatalf("camera distance gauge = %v", got)
	}
}

func TestMissingHighTextureKeepsCurrentLevel(t *testing.T) {
	f := newFakeFetcher(t)
	delete(f.files, "high.png")
	g, _ := newTestGlobe(t, f, 3, nil)
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g.Wait()

	g.OnDistanceChanged(1)
	g.Wait()

	s := g.Snapshot()
	if s.Texture.Level != "medium" || s.Texture.Target != "high" {
		t.Fatalf("texture = %+v, want medium shown while high is unavailable", s.Texture)
	}
	if s.Geometry.Level != "near" {
		t.Fatalf("geometry should still switch: %+v", s.Geometry)
	}
}

func TestDuplicateDistanceUpdatesFetchOnce(t *testing.T) {
	f := newFakeFetcher(t)
	gate := f.gate("medium.png")
	g, _ := newTestGlobe(t, f, 5, nil)
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	g.OnDistanceChanged(3)
	g.OnDistanceChanged(3.1)
	g.OnDistanceChanged(2.9)
	close(gate)
	g.Wait()

	if n := f.count("medium.png"); n != 1 {
		t.Fatalf("medium texture fetched %d times, want 1", n)
	}
	if s := g.Snapshot(); s.Texture.Level != "medium" {
		t.Fatalf("texture = %+v", s.Texture)
	}
}

func TestStaleTextureCompletionIsNotApplied(t *testing.T) {
	f := newFakeFetcher(t)
	gate := f.gate("medium.png")
	g, _ := newTestGlobe(t, f, 5, nil)
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	g.OnDistanceChanged(3)
	g.OnDistanceChanged(5)
	close(gate)
	g.Wait()

	s := g.Snapshot()
	if s.Texture.Level != "low" || s.Texture.Target != "low" {
		t.Fatalf("texture = %+v, stale medium load should not be shown", s.Texture)
	}
	g.OnDistanceChanged(3)
	if s := g.Snapshot(); s.Texture.Level != "medium" {
		t.Fatalf("cached medium should apply immediately: %+v", s.Texture)
	}
}

func TestFrameAdvancesCloudsAndZoom(t *testing.T) {
	f := newFakeFetcher(t)
	g, _ := newTestGlobe(t, f, 3, nil)
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g.Wait()

	g.Controls().ZoomIn()
	start := time.Unix(1700000000, 0)
	var s FrameState
	for i := 0; i < 200; i++ {
		s = g.Frame(start.Add(time.Duration(i) * 16 * time.Millisecond))
	}
	if s.Frame != 200 || math.Abs(s.CloudRotation-200*CloudSpeed) > 1e-12 {
		t.Fatalf("frame = %d, clouds = %v", s.Frame, s.CloudRotation)
	}
	if math.Abs(s.Distance-2.5) > 1e-3 {
		t.Fatalf("distance = %v, want about 2.5 after zoom in", s.Distance)
	}
	if len(s.Markers) != 3 {
		t.Fatalf("markers = %d", len(s.Markers))
	}
	for _, m := range s.Markers {
		if m.Category == model.CategoryMajor && math.Abs(m.Size-model.VisualFor(m.Category).Size*s.MarkerScale) > 1e-12 {
			t.Fatalf("non-capital marker should not pulse: %+v", m)
		}
	}
}

func TestSearchPickAndFlyTo(t *testing.T) {
	f := newFakeFetcher(t)
	g, _ := newTestGlobe(t, f, 3, nil)

	if got := g.Search("france"); len(got) != 2 {
		t.Fatalf("Search(france) = %v", got)
	}
	if m, ok := g.Pick(48.9, 2.4); !ok || m.Name != "Paris" {
		t.Fatalf("Pick near Paris = %v, %v", m, ok)
	}
	if _, ok := g.Pick(0, -150); ok {
		t.Fatalf("Pick in the Pacific should miss")
	}
	if _, err := g.FlyToMarker("Atlantis"); !errors.Is(err, ErrUnknownMarker) {
		t.Fatalf("FlyToMarker(unknown) err = %v", err)
	}
	m, err := g.FlyToMarker("nairobi")
	if err != nil || m.Name != "Nairobi" {
		t.Fatalf("FlyToMarker = %v, %v", m, err)
	}
	start := time.Unix(0, 0)
	for i := 0; i < 400; i++ {
		g.Frame(start.Add(time.Duration(i) * time.Millisecond))
	}
	s := g.Snapshot()
	if math.Abs(s.Distance-1.5) > 1e-6 {
		t.Fatalf("fly-to distance = %v", s.Distance)
	}
	if math.Abs(s.Orientation.Center.Lat-m.Lat) > 0.01 || math.Abs(s.Orientation.Center.Lon-m.Lon) > 0.01 {
		t.Fatalf("centre = %+v, want %v,%v", s.Orientation.Center, m.Lat, m.Lon)
	}
	if articles, err := g.ArticlesFor("Paris"); err != nil || len(articles) != 0 {
		t.Fatalf("ArticlesFor with news disabled = %v, %v", articles, err)
	}
}

func TestDuplicateMarkersRejected(t *testing.T) {
	ms := append(testMarkers(), testMarkers()[0])
	if _, err := New(Config{Markers: ms}); err == nil {
		t.Fatalf("duplicate markers should fail New")
	}
}

func TestLazyGeometry(t *testing.T) {
	f := newFakeFetcher(t)
	g, _ := newTestGlobe(t, f, 5, func(c *Config) { c.LazyGeometry = true })
	if s := g.Snapshot(); s.Geometry.Segments != 0 {
		t.Fatalf("lazy geometry built before Init: %+v", s.Geometry)
	}
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s := g.Snapshot(); s.Geometry.Level != "far" || s.Geometry.Segments != 64 {
		t.Fatalf("geometry after Init = %+v", s.Geometry)
	}
	g.OnDistanceChanged(1)
	g.Wait()
	if s := g.Snapshot(); s.Geometry.Level != "near" || s.Geometry.Segments != 256 {
		t.Fatalf("geometry after zoom = %+v", s.Geometry)
	}
}

func TestBordersToggleAndClose(t *testing.T) {
	f := newFakeFetcher(t)
	g, _ := newTestGlobe(t, f, 5, nil)
	if err := g.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	g.SetBordersVisible(false)
	if s := g.Snapshot(); s.Borders.Visible {
		t.Fatalf("borders still visible")
	}
	g.SetBordersVisible(true)
	if s := g.Snapshot(); !s.Borders.Visible || s.Borders.Active != "low" {
		t.Fatalf("borders = %+v", s.Borders)
	}

	g.Close()
	if err := g.Init(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Init after Close err = %v", err)
	}
	if s := g.Snapshot(); s.Texture.Source != "" {
		t.Fatalf("texture survived Close: %+v", s.Texture)
	}
}
