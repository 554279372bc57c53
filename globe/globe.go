// Package globe ties the engine together: camera controls drive the LOD
// policy, which swaps textures, geometry and border tiers, while markers
// and news are sampled into a FrameState once per frame.
package globe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/borders"
	"github.com/signalsfoundry/globeview/controls"
	"github.com/signalsfoundry/globeview/core"
	"github.com/signalsfoundry/globeview/internal/fetch"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"github.com/signalsfoundry/globeview/lod"
	"github.com/signalsfoundry/globeview/markers"
	"github.com/signalsfoundry/globeview/model"
	"github.com/signalsfoundry/globeview/news"
	"github.com/signalsfoundry/globeview/scene"
)

const (
	// CloudSpeed is the cloud layer rotation per frame, in radians.
	CloudSpeed = 0.0001
	// PickRadiusKm bounds how far from a marker a pick still selects it.
	PickRadiusKm = 250.0
)

var (
	// ErrUnknownMarker is returned for names not in the marker store.
	ErrUnknownMarker = errors.New("globe: unknown marker")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("globe: closed")
)

// Config wires a Globe. Nil fields fall back to defaults; a nil News
// disables the news feature.
type Config struct {
	Policy   *lod.Policy
	Controls controls.Controls
	Fetcher  fetch.Fetcher

	Textures map[lod.TextureQuality][]string
	Layers   map[assets.Layer][]string
	Borders  map[lod.BorderLevel][]string
	Markers  []model.Marker

	// LazyGeometry builds sphere tessellations on first use instead of at
	// construction.
	LazyGeometry bool

	News    *news.Config
	Logger  logging.Logger
	Metrics *observability.GlobeCollector
}

// Globe is the application context. All methods are safe for concurrent
// use.
type Globe struct {
	policy   lod.Policy
	controls controls.Controls
	log      logging.Logger
	metrics  *observability.GlobeCollector
	ctx      context.Context

	textures *assets.Cache[lod.TextureQuality]
	geometry *assets.Cache[lod.GeometryLevel]
	layers   *assets.Cache[assets.Layer]
	borders  *borders.Overlay
	markers  *markers.Store
	news     *news.Client
	root     *scene.Group

	activeTexture  atomic.Pointer[assets.Texture]
	activeGeometry atomic.Pointer[assets.Sphere]
	lazyGeometry   bool

	mu            sync.Mutex
	texture       *lod.Tracker[lod.TextureQuality]
	geo           *lod.Tracker[lod.GeometryLevel]
	wantTexture   lod.TextureQuality
	wantGeometry  lod.GeometryLevel
	frame         uint64
	lastFrame     time.Time
	cloudRotation float64
	closed        bool
}

// New builds a globe. Nothing is fetched until Init.
func New(cfg Config) (*Globe, error) {
	policy := lod.DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	ctrl := cfg.Controls
	if ctrl == nil {
		ctrl = controls.NewOrbit(controls.DefaultConfig())
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewClient(".", 30*time.Second)
	}
	log := logging.OrNoop(cfg.Logger)

	store := markers.NewStore()
	if err := store.AddAll(cfg.Markers); err != nil {
		return nil, fmt.Errorf("globe: markers: %w", err)
	}

	g := &Globe{
		policy:       policy,
		controls:     ctrl,
		log:          log,
		metrics:      cfg.Metrics,
		ctx:          context.Background(),
		markers:      store,
		root:         scene.NewGroup("globe"),
		lazyGeometry: cfg.LazyGeometry,
		texture:      lod.NewTracker(policy.Texture, lod.TextureLow),
		geo:          lod.NewTracker(policy.Geometry, lod.GeometryFar),
		wantTexture:  lod.TextureLow,
		wantGeometry: lod.GeometryFar,
	}

	opts := []assets.Option{assets.WithRecorder(cfg.Metrics)}
	g.textures = assets.NewCache("texture", assets.NewTextureLoader(fetcher), cfg.Textures,
		append(opts, assets.WithLogger(log.With(logging.String("family", "texture"))))...)
	g.textures.OnLoaded(g.onTextureLoaded)

	g.layers = assets.NewCache("layer", assets.NewTextureLoader(fetcher), cfg.Layers,
		append(opts, assets.WithLogger(log.With(logging.String("family", "layer"))))...)

	geometrySources := make(map[lod.GeometryLevel][]string)
	for _, level := range policy.Geometry.Levels() {
		geometrySources[level] = []string{assets.SphereSource(level.Segments())}
	}
	g.geometry = assets.NewCache("geometry", assets.SphereLoader{Radius: core.GlobeRadius}, geometrySources,
		append(opts, assets.WithLogger(log.With(logging.String("family", "geometry"))))...)
	g.geometry.OnLoaded(g.onGeometryLoaded)
	if !cfg.LazyGeometry {
		for _, level := range policy.Geometry.Levels() {
			g.geometry.Prebuild(level, assets.BuildSphere(level.Segments(), core.GlobeRadius))
		}
		if res, ok := g.geometry.Get(lod.GeometryFar); ok {
			g.activeGeometry.Store(res.(*assets.Sphere))
		}
	}

	g.borders = borders.New(borders.Config{
		Sources:  cfg.Borders,
		Table:    policy.Border,
		Group:    scene.NewGroup("borders"),
		Fetcher:  fetcher,
		Logger:   log.With(logging.String("family", "borders")),
		Recorder: cfg.Metrics,
		Assets:   cfg.Metrics,
	})

	if cfg.News != nil {
		nc := *cfg.News
		if nc.Logger == nil {
			nc.Logger = log.With(logging.String("component", "news"))
		}
		if nc.Recorder == nil && cfg.Metrics != nil {
			nc.Recorder = cfg.Metrics
		}
		g.news = news.New(nc, store.Names())
	}

	ctrl.OnDistanceChange(g.OnDistanceChanged)
	return g, nil
}

// Init loads the low texture and low border tier before returning, then
// starts the auxiliary layers and applies the levels for the current
// distance. Missing assets degrade quality; only a closed globe fails.
func (g *Globe) Init(ctx context.Context) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if _, err := g.textures.Load(ctx, lod.TextureLow); err != nil {
		g.log.Warn(ctx, "base texture unavailable, rendering untextured", logging.Err(err))
	}
	if g.lazyGeometry {
		if _, err := g.geometry.Load(ctx, lod.GeometryFar); err != nil {
			g.log.Warn(ctx, "base geometry unavailable", logging.Err(err))
		}
	}
	for _, layer := range assets.Layers() {
		if _, err := g.layers.EnsureLoaded(ctx, layer); err != nil {
			g.log.Debug(ctx, "layer not scheduled", logging.String("layer", string(layer)), logging.Err(err))
		}
	}
	g.borders.Init(ctx)
	g.root.Attach(g.borders.Group())

	g.OnDistanceChanged(g.controls.Distance())
	g.log.Info(ctx, "globe initialised",
		logging.Int("markers", g.markers.Len()),
		logging.Float64("distance", g.controls.Distance()),
	)
	return nil
}

// OnDistanceChanged re-evaluates every resource family for distance d.
// Controls call it for every distance change, including smoothed steps.
func (g *Globe) OnDistanceChanged(d float64) {
	g.metrics.SetCameraDistance(d)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.updateTextureLocked(d)
	g.updateGeometryLocked(d)
	g.mu.Unlock()

	g.borders.UpdateLOD(g.ctx, d)

	scale, err := g.policy.Scale.Scale(d)
	if err != nil {
		g.log.Warn(g.ctx, "marker scale unchanged", logging.Err(err))
		return
	}
	g.markers.SetScale(scale)
	g.metrics.SetMarkerScale(scale)
}

func (g *Globe) updateTextureLocked(d float64) {
	target, changed := g.texture.Evaluate(d)
	g.wantTexture = target
	if !changed {
		return
	}
	if res, ok := g.textures.Get(target); ok {
		g.applyTextureLocked(target, res)
		return
	}
	if _, err := g.textures.EnsureLoaded(g.ctx, target); err != nil {
		g.log.Warn(g.ctx, "texture load not started", logging.String("lod", target.String()), logging.Err(err))
	}
}

func (g *Globe) updateGeometryLocked(d float64) {
	target, changed := g.geo.Evaluate(d)
	g.wantGeometry = target
	if !changed {
		return
	}
	if res, ok := g.geometry.Get(target); ok {
		g.applyGeometryLocked(target, res)
		return
	}
	if _, err := g.geometry.EnsureLoaded(g.ctx, target); err != nil {
		g.log.Warn(g.ctx, "geometry build not started", logging.String("lod", target.String()), logging.Err(err))
	}
}

// onTextureLoaded applies a finished load only if its level is still the
// one the camera wants, or if nothing is displayed yet.
func (g *Globe) onTextureLoaded(level lod.TextureQuality, res assets.Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if level == g.wantTexture || g.activeTexture.Load() == nil {
		g.applyTextureLocked(level, res)
	}
}

func (g *Globe) onGeometryLoaded(level lod.GeometryLevel, res assets.Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if level == g.wantGeometry || g.activeGeometry.Load() == nil {
		g.applyGeometryLocked(level, res)
	}
}

func (g *Globe) applyTextureLocked(level lod.TextureQuality, res assets.Resource) {
	tex, ok := res.(*assets.Texture)
	if !ok {
		return
	}
	prev := g.activeTexture.Swap(tex)
	g.texture.Commit(level)
	if prev != tex {
		g.metrics.RecordLODSwitch("texture", level.String())
		g.log.Debug(g.ctx, "texture switched", logging.String("lod", level.String()), logging.String("source", tex.URI))
	}
}

func (g *Globe) applyGeometryLocked(level lod.GeometryLevel, res assets.Resource) {
	sphere, ok := res.(*assets.Sphere)
	if !ok {
		return
	}
	prev := g.activeGeometry.Swap(sphere)
	g.geo.Commit(level)
	if prev != sphere {
		g.metrics.RecordLODSwitch("geometry", level.String())
	}
}

// Frame advances the controls by one frame and samples the render state.
func (g *Globe) Frame(now time.Time) FrameState {
	moved := g.controls.Update(now)

	g.mu.Lock()
	g.frame++
	g.lastFrame = now
	g.cloudRotation += CloudSpeed
	state := g.stateLocked(now)
	g.mu.Unlock()

	state.Moved = moved
	return state
}

// Snapshot samples the render state without advancing a frame.
func (g *Globe) Snapshot() FrameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.lastFrame
	if now.IsZero() {
		now = time.Now()
	}
	return g.stateLocked(now)
}

// Search returns up to markers.DefaultSearchLimit markers whose name or
// country contains query.
func (g *Globe) Search(query string) []model.Marker {
	return g.markers.Search(query, markers.DefaultSearchLimit)
}

// Pick returns the marker nearest to lat/lon within PickRadiusKm.
func (g *Globe) Pick(lat, lon float64) (model.Marker, bool) {
	m, _, ok := g.markers.Nearest(core.LatLon{Lat: lat, Lon: core.NormalizeLon(lon)}, PickRadiusKm)
	return m, ok
}

// FlyToMarker starts a fly-to animation toward the named marker.
func (g *Globe) FlyToMarker(name string) (model.Marker, error) {
	m, ok := g.markers.Get(name)
	if !ok {
		return model.Marker{}, fmt.Errorf("%w: %q", ErrUnknownMarker, name)
	}
	g.controls.AnimateToLocation(m.Lat, m.Lon)
	g.log.Debug(g.ctx, "fly to marker", logging.String("marker", m.Name))
	return m, nil
}

// ArticlesFor returns the news matched to the named marker. It returns an
// empty list while news is disabled.
func (g *Globe) ArticlesFor(name string) ([]news.Article, error) {
	m, ok := g.markers.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarker, name)
	}
	var articles []news.Article
	if g.news != nil {
		articles = g.news.ArticlesFor(m.Name)
	}
	if articles == nil {
		articles = []news.Article{}
	}
	return articles, nil
}

// News returns the feed client, or nil when news is disabled.
func (g *Globe) News() *news.Client { return g.news }

// Markers returns the marker store.
func (g *Globe) Markers() *markers.Store { return g.markers }

// Controls returns the active camera controls.
func (g *Globe) Controls() controls.Controls { return g.controls }

// HandleInput forwards an input event to the controls.
func (g *Globe) HandleInput(ev controls.Event) { g.controls.HandleInput(ev) }

// SetBordersVisible shows or hides the border overlay.
func (g *Globe) SetBordersVisible(visible bool) { g.borders.SetVisible(visible) }

// Wait blocks until every background asset load has finished.
func (g *Globe) Wait() {
	g.textures.Wait()
	g.geometry.Wait()
	g.layers.Wait()
	g.borders.Wait()
}

// Close stops pending loads and releases every cached resource.
func (g *Globe) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.textures.Close()
	g.geometry.Close()
	g.layers.Close()
	g.borders.Dispose()
	g.root.Detach(g.borders.Group())
	g.activeTexture.Store(nil)
	g.activeGeometry.Store(nil)
}
