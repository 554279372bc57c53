// Package assets holds per-level resources that are either built eagerly
// at startup or loaded lazily from an ordered list of fallback sources.
package assets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnknownLevel is returned for levels the cache has no slot for.
	ErrUnknownLevel = errors.New("assets: unknown level")
	// ErrSourcesExhausted is recorded on a slot when every source failed.
	ErrSourcesExhausted = errors.New("assets: all sources failed")
	// ErrClosed is returned once the cache has been closed.
	ErrClosed = errors.New("assets: cache closed")
	// ErrBusy is returned by Load while another goroutine loads the slot.
	ErrBusy = errors.New("assets: load in progress")
)

// LoadState is the lifecycle of one slot.
type LoadState int

const (
	StateUnloaded LoadState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resource is a ready-to-use asset.
type Resource interface {
	// Source identifies where the resource came from.
	Source() string
}

// Loader turns one source URI into a resource.
type Loader interface {
	Load(ctx context.Context, source string) (Resource, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, source string) (Resource, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, source string) (Resource, error) {
	return f(ctx, source)
}

// Recorder receives per-load measurements.
type Recorder interface {
	RecordAssetLoad(family, level string, loaded bool, d time.Duration)
}

type slot struct {
	state   LoadState
	sources []string
	res     Resource
	err     error
}

// Cache holds one slot per level of a resource family. At most one load
// runs per slot; a failed slot is not retried.
type Cache[L comparable] struct {
	family   string
	loader   Loader
	log      logging.Logger
	recorder Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	slots    map[L]*slot
	onLoaded []func(L, Resource)
	closed   bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	log      logging.Logger
	recorder Recorder
}

// WithLogger sets the cache logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRecorder sets the load metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// NewCache creates a cache for family with one slot per key of sources.
// Levels with no sources can only be filled through Prebuild.
func NewCache[L comparable](family string, loader Loader, sources map[L][]string, opts ...Option) *Cache[L] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache[L]{
		family:   family,
		loader:   loader,
		log:      logging.OrNoop(o.log).With(logging.String("family", family)),
		recorder: o.recorder,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(map[L]*slot, len(sources)),
	}
	for level, srcs := range sources {
		c.slots[level] = &slot{sources: append([]string(nil), srcs...)}
	}
	return c
}

// Family returns the resource family name.
func (c *Cache[L]) Family() string { return c.family }

// OnLoaded registers fn to run after every successful load. Callbacks run
// on the loading goroutine, outside the cache lock.
func (c *Cache[L]) OnLoaded(fn func(level L, res Resource)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.onLoaded = append(c.onLoaded, fn)
	c.mu.Unlock()
}

// EnsureLoaded makes sure level is loaded or loading and returns the slot
// state seen by this call. Loaded and loading slots are left alone, so
// repeated calls never start a second load.
func (c *Cache[L]) EnsureLoaded(ctx context.Context, level L) (LoadState, error) {
	state, sources, started, err := c.begin(level)
	if err != nil || !started {
		return state, err
	}
	// Detach from the caller's cancellation but keep its span as parent.
	loadCtx := trace.ContextWithSpan(c.ctx, trace.SpanFromContext(ctx))
	go c.load(loadCtx, level, sources)
	return StateLoading, nil
}

// Load is the blocking form of EnsureLoaded: it runs the load on the
// calling goroutine and returns the resource. It returns ErrBusy when
// another goroutine is already loading the slot.
func (c *Cache[L]) Load(ctx context.Context, level L) (Resource, error) {
	state, sources, started, err := c.begin(level)
	if err != nil {
		return nil, err
	}
	if started {
		c.load(ctx, level, sources)
	} else if state == StateLoading {
		return nil, ErrBusy
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.slots[level]
	if s.state != StateLoaded {
		return nil, s.err
	}
	return s.res, nil
}

// begin marks an unloaded slot as loading under the lock and registers the
// pending load with the wait group.
func (c *Cache[L]) begin(level L) (LoadState, []string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return StateUnloaded, nil, false, ErrClosed
	}
	s, ok := c.slots[level]
	if !ok {
		return StateUnloaded, nil, false, fmt.Errorf("%w: %s %v", ErrUnknownLevel, c.family, level)
	}
	if s.state != StateUnloaded {
		return s.state, nil, false, nil
	}
	s.state = StateLoading
	c.wg.Add(1)
	return StateLoading, append([]string(nil), s.sources...), true, nil
}

// Prebuild stores an eagerly constructed resource for level.
func (c *Cache[L]) Prebuild(level L, res Resource) {
	c.mu.Lock()
	s, ok := c.slots[level]
	if !ok {
		s = &slot{}
		c.slots[level] = s
	}
	s.state = StateLoaded
	s.res = res
	s.err = nil
	c.mu.Unlock()
}

// Get returns the resource for level if it is loaded.
func (c *Cache[L]) Get(level L) (Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[level]
	if !ok || s.state != StateLoaded {
		return nil, false
	}
	return s.res, true
}

// State returns the slot state for level.
func (c *Cache[L]) State(level L) LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[level]; ok {
		return s.state
	}
	return StateUnloaded
}

// Err returns the error recorded on a failed slot.
func (c *Cache[L]) Err(level L) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[level]; ok {
		return s.err
	}
	return nil
}

// Sources returns the configured fallback list for level.
func (c *Cache[L]) Sources(level L) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[level]; ok {
		return append([]string(nil), s.sources...)
	}
	return nil
}

// Wait blocks until every in-flight load has finished.
func (c *Cache[L]) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight loads, waits for them to return and releases
// every resource.
func (c *Cache[L]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for _, s := range c.slots {
		s.state = StateUnloaded
		s.res = nil
		s.err = nil
	}
	c.mu.Unlock()
}

// attemptOutcome is the result of trying one source.
type attemptOutcome int

const (
	attemptSuccess attemptOutcome = iota
	attemptTryNext
	attemptExhausted
)

func (c *Cache[L]) attempt(ctx context.Context, sources []string, i int) (Resource, attemptOutcome, error) {
	if i >= len(sources) {
		return nil, attemptExhausted, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, attemptExhausted, err
	}
	res, err := c.loader.Load(ctx, sources[i])
	if err != nil {
		return nil, attemptTryNext, err
	}
	if res == nil {
		return nil, attemptTryNext, fmt.Errorf("assets: loader returned nothing for %s", sources[i])
	}
	return res, attemptSuccess, nil
}

func (c *Cache[L]) load(ctx context.Context, level L, sources []string) {
	defer c.wg.Done()

	levelName := fmt.Sprint(level)
	ctx, span := observability.Tracer().Start(ctx, "assets.load",
		trace.WithAttributes(
			attribute.String("asset.family", c.family),
			attribute.String("asset.level", levelName),
			attribute.Int("asset.sources", len(sources)),
		),
	)
	defer span.End()
	start := time.Now()

	var (
		res     Resource
		lastErr error
	)
loop:
	for i := 0; ; i++ {
		r, outcome, err := c.attempt(ctx, sources, i)
		switch outcome {
		case attemptSuccess:
			res = r
			span.SetAttributes(attribute.String("asset.source", sources[i]))
			break loop
		case attemptTryNext:
			lastErr = err
			c.log.Debug(ctx, "asset source failed, trying next",
				logging.String("lod", levelName),
				logging.String("source", sources[i]),
				logging.Err(err),
			)
		case attemptExhausted:
			if err != nil {
				lastErr = err
			}
			break loop
		}
	}

	if c.recorder != nil {
		c.recorder.RecordAssetLoad(c.family, levelName, res != nil, time.Since(start))
	}

	c.mu.Lock()
	s := c.slots[level]
	if res == nil {
		s.state = StateFailed
		s.err = fmt.Errorf("%w: %s %s (%d sources): %v", ErrSourcesExhausted, c.family, levelName, len(sources), lastErr)
		failErr := s.err
		c.mu.Unlock()

		span.RecordError(failErr)
		span.SetStatus(codes.Error, "sources exhausted")
		c.log.Warn(ctx, "asset sources exhausted",
			logging.String("lod", levelName),
			logging.Int("sources", len(sources)),
			logging.Err(lastErr),
		)
		return
	}
	s.state = StateLoaded
	s.res = res
	s.err = nil
	callbacks := append([]func(L, Resource){}, c.onLoaded...)
	c.mu.Unlock()

	c.log.Debug(ctx, "asset loaded",
		logging.String("lod", levelName),
		logging.String("source", res.Source()),
		logging.Duration("elapsed", time.Since(start)),
	)
	for _, fn := range callbacks {
		fn(level, res)
	}
}

var _ Recorder = (*observability.GlobeCollector)(nil)
