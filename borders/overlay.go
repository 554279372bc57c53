// Package borders maintains the country border overlay: two detail tiers
// parsed from GeoJSON, exactly one of which is attached to the scene.
package borders

import (
	"context"
	"sync"

	"github.com/signalsfoundry/globeview/assets"
	"github.com/signalsfoundry/globeview/internal/fetch"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/lod"
	"github.com/signalsfoundry/globeview/scene"
)

// Style is the line material of a tier.
type Style struct {
	Color     uint32  `json:"color"`
	Opacity   float64 `json:"opacity"`
	LineWidth float64 `json:"lineWidth"`
}

// StyleFor returns the stock style of a tier: faint grey when zoomed out,
// brighter white when close.
func StyleFor(level lod.BorderLevel) Style {
	if level == lod.BorderMedium {
		return Style{Color: 0xffffff, Opacity: 0.35, LineWidth: 1.5}
	}
	return Style{Color: 0xcccccc, Opacity: 0.25, LineWidth: 1}
}

// Tier is the attachable scene object for one detail level.
type Tier struct {
	Level lod.BorderLevel
	Style Style
	Lines *Lines
}

// ObjectID implements scene.Object.
func (t *Tier) ObjectID() string { return "borders/" + t.Level.String() }

// Recorder receives tier switches.
type Recorder interface {
	RecordLODSwitch(family, level string)
	SetBorderTier(level string, levels ...string)
}

// Config wires an Overlay.
type Config struct {
	Sources  map[lod.BorderLevel][]string
	Table    lod.Table[lod.BorderLevel]
	Group    *scene.Group
	Fetcher  fetch.Fetcher
	Logger   logging.Logger
	Recorder Recorder
	Assets   assets.Recorder
}

// TierStatus reports the load state of one tier.
type TierStatus struct {
	Level    string `json:"level"`
	State    string `json:"state"`
	Lines    int    `json:"lines"`
	Attached bool   `json:"attached"`
	Error    string `json:"error,omitempty"`
}

// Overlay swaps border tiers as the camera distance changes.
type Overlay struct {
	cache    *assets.Cache[lod.BorderLevel]
	table    lod.Table[lod.BorderLevel]
	group    *scene.Group
	log      logging.Logger
	recorder Recorder

	mu       sync.Mutex
	tiers    map[lod.BorderLevel]*Tier
	active   *Tier
	desired  lod.BorderLevel
	visible  bool
	disposed bool
}

// New builds an overlay; nothing is fetched until Init.
func New(cfg Config) *Overlay {
	log := logging.OrNoop(cfg.Logger)
	group := cfg.Group
	if group == nil {
		group = scene.NewGroup("borders")
	}
	o := &Overlay{
		table:    cfg.Table,
		group:    group,
		log:      log,
		recorder: cfg.Recorder,
		tiers:    make(map[lod.BorderLevel]*Tier),
		desired:  lod.BorderLow,
		visible:  true,
	}
	opts := []assets.Option{assets.WithLogger(log)}
	if cfg.Assets != nil {
		opts = append(opts, assets.WithRecorder(cfg.Assets))
	}
	o.cache = assets.NewCache("borders", &Loader{Fetcher: cfg.Fetcher, Radius: Radius}, cfg.Sources, opts...)
	o.cache.OnLoaded(o.onLoaded)
	return o
}

// Group returns the scene group the overlay attaches to.
func (o *Overlay) Group() *scene.Group { return o.group }

// Init loads the low tier before returning and starts the medium tier in
// the background. A failed tier is disabled with a warning; Init never
// fails.
func (o *Overlay) Init(ctx context.Context) {
	if _, err := o.cache.Load(ctx, lod.BorderLow); err != nil {
		o.log.Warn(ctx, "low detail borders unavailable", logging.Err(err))
	}
	if _, err := o.cache.EnsureLoaded(ctx, lod.BorderMedium); err != nil {
		o.log.Warn(ctx, "medium detail borders not scheduled", logging.Err(err))
	}
}

// UpdateLOD selects the tier for distance d and swaps it in if ready. It
// reports whether the attached tier changed.
func (o *Overlay) UpdateLOD(ctx context.Context, d float64) bool {
	target := o.table.Select(d)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return false
	}
	o.desired = target
	if o.active != nil && o.active.Level == target {
		return false
	}
	tier, ok := o.tierLocked(target)
	if !ok {
		// Not ready yet: keep the current tier and make sure a load is
		// pending. onLoaded finishes the swap if target is still desired.
		if _, err := o.cache.EnsureLoaded(ctx, target); err != nil {
			o.log.Debug(ctx, "border tier not loadable", logging.String("lod", target.String()), logging.Err(err))
		}
		return false
	}
	o.swapLocked(tier)
	return true
}

// SetVisible attaches or detaches the current tier without discarding
// geometry.
func (o *Overlay) SetVisible(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.visible == visible {
		return
	}
	o.visible = visible
	if o.active == nil {
		return
	}
	if visible {
		o.group.Attach(o.active)
	} else {
		o.group.Detach(o.active)
	}
}

// Visible reports the visibility toggle.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Active returns the designated tier, or nil.
func (o *Overlay) Active() *Tier {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Status reports both tiers.
func (o *Overlay) Status() []TierStatus {
	o.mu.Lock()
	active := o.active
	visible := o.visible
	o.mu.Unlock()

	out := make([]TierStatus, 0, 2)
	for _, level := range []lod.BorderLevel{lod.BorderLow, lod.BorderMedium} {
		st := TierStatus{Level: level.String(), State: o.cache.State(level).String()}
		if res, ok := o.cache.Get(level); ok {
			st.Lines = len(res.(*Lines).Polyline)
		}
		if err := o.cache.Err(level); err != nil {
			st.Error = err.Error()
		}
		st.Attached = visible && active != nil && active.Level == level
		out = append(out, st)
	}
	return out
}

// Wait blocks until background tier loads finish.
func (o *Overlay) Wait() { o.cache.Wait() }

// Dispose detaches the overlay and releases both tiers.
func (o *Overlay) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	if o.active != nil {
		o.group.Detach(o.active)
	}
	o.active = nil
	o.tiers = make(map[lod.BorderLevel]*Tier)
	o.mu.Unlock()

	o.cache.Close()
	o.record("")
}

func (o *Overlay) onLoaded(level lod.BorderLevel, _ assets.Resource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed || level != o.desired {
		return
	}
	if o.active != nil && o.active.Level == level {
		return
	}
	if tier, ok := o.tierLocked(level); ok {
		o.swapLocked(tier)
	}
}

func (o *Overlay) tierLocked(level lod.BorderLevel) (*Tier, bool) {
	if t, ok := o.tiers[level]; ok {
		return t, true
	}
	res, ok := o.cache.Get(level)
	if !ok {
		return nil, false
	}
	t := &Tier{Level: level, Style: StyleFor(level), Lines: res.(*Lines)}
	o.tiers[level] = t
	return t, true
}

func (o *Overlay) swapLocked(next *Tier) {
	if o.visible {
		var detach []scene.Object
		if o.active != nil {
			detach = append(detach, o.active)
		}
		o.group.Swap(detach, []scene.Object{next})
	}
	o.active = next
	if o.recorder != nil {
		o.recorder.RecordLODSwitch("borders", next.Level.String())
	}
	o.record(next.Level.String())
}

func (o *Overlay) record(level string) {
	if o.recorder != nil {
		o.recorder.SetBorderTier(level, lod.BorderLow.String(), lod.BorderMedium.String())
	}
}
