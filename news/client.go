// Package news fetches a public RSS-to-JSON feed and attaches articles to
// the markers they mention.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Defaults for the feed client.
const (
	DefaultFeedURL       = "https://api.rss2json.com/v1/api.json?rss_url=https://feeds.bbci.co.uk/news/world/rss.xml"
	DefaultTTL           = 10 * time.Minute
	DefaultTimeout       = 10 * time.Second
	DefaultCheckInterval = time.Minute
)

var (
	// ErrStatus is returned for non-2xx feed responses.
	ErrStatus = errors.New("news: unexpected HTTP status")
	// ErrContentType is returned when the feed is not JSON.
	ErrContentType = errors.New("news: invalid response content type")
	// ErrFeedStatus is returned when the feed envelope reports an error.
	ErrFeedStatus = errors.New("news: feed returned error status")
)

// Recorder receives refresh outcomes.
type Recorder interface {
	RecordNewsFetch(outcome string)
	SetNewsMatched(n int)
}

// Config wires a Client. Zero values use the package defaults.
type Config struct {
	FeedURL       string
	TTL           time.Duration
	Timeout       time.Duration
	CheckInterval time.Duration
	MaxPerMarker  int
	HTTP          *http.Client
	Store         SnapshotStore
	Logger        logging.Logger
	Recorder      Recorder
	Now           func() time.Time
}

// Client caches feed matches for a fixed set of marker names.
type Client struct {
	cfg     Config
	matcher *Matcher
	log     logging.Logger

	mu        sync.Mutex
	entries   map[string][]Article
	fetchedAt time.Time
	loading   bool
	lastErr   string
	active    bool
}

// New compiles matchers for names once and returns an empty client.
func New(cfg Config, names []string) *Client {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.MaxPerMarker <= 0 {
		cfg.MaxPerMarker = DefaultMaxPerMarker
	}
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Client{
		cfg:     cfg,
		matcher: NewMatcher(names),
		log:     logging.OrNoop(cfg.Logger),
		entries: make(map[string][]Article),
		active:  true,
	}
}

// Refresh fetches the feed unless the cache is still fresh. It returns
// true when fresh data is available (cached or fetched) and false when
// another refresh is in flight or the fetch failed. A failure keeps the
// previous entries and records the error.
func (c *Client) Refresh(ctx context.Context) bool {
	c.mu.Lock()
	now := c.cfg.Now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.cfg.TTL {
		c.mu.Unlock()
		c.record("cached")
		return true
	}
	if c.loading {
		c.mu.Unlock()
		c.record("busy")
		return false
	}
	c.loading = true
	c.lastErr = ""
	c.mu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "news.refresh")
	defer span.End()

	if snap := c.loadShared(ctx, now); snap != nil {
		c.apply(snap.Entries, snap.FetchedAt)
		span.SetAttributes(attribute.String("news.source", "shared"))
		c.record("shared")
		return true
	}

	items, err := c.fetch(ctx)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.loading = false
		c.mu.Unlock()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn(ctx, "news fetch failed", logging.String("url", c.cfg.FeedURL), logging.Err(err))
		c.record("error")
		return false
	}

	entries := c.matcher.Match(items, c.cfg.MaxPerMarker)
	fetchedAt := c.cfg.Now()
	c.apply(entries, fetchedAt)
	span.SetAttributes(
		attribute.Int("news.items", len(items)),
		attribute.Int("news.markers", len(entries)),
	)
	c.log.Info(ctx, "news refreshed",
		logging.Int("items", len(items)),
		logging.Int("markers", len(entries)),
	)
	c.record("ok")

	if c.cfg.Store != nil {
		snap := &Snapshot{FetchedAt: fetchedAt, Entries: entries}
		if err := c.cfg.Store.Save(ctx, snap, c.cfg.TTL); err != nil {
			c.log.Warn(ctx, "news snapshot not shared", logging.Err(err))
		}
	}
	return true
}

func (c *Client) apply(entries map[string][]Article, fetchedAt time.Time) {
	if entries == nil {
		entries = make(map[string][]Article)
	}
	c.mu.Lock()
	c.entries = entries
	c.fetchedAt = fetchedAt
	c.loading = false
	n := len(entries)
	c.mu.Unlock()
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.SetNewsMatched(n)
	}
}

func (c *Client) loadShared(ctx context.Context, now time.Time) *Snapshot {
	if c.cfg.Store == nil {
		return nil
	}
	snap, err := c.cfg.Store.Load(ctx)
	if err != nil {
		c.log.Warn(ctx, "news snapshot unavailable", logging.Err(err))
		return nil
	}
	if snap == nil || snap.FetchedAt.IsZero() || now.Sub(snap.FetchedAt) >= c.cfg.TTL {
		return nil
	}
	return snap
}

func (c *Client) fetch(ctx context.Context) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("news: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.cfg.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, fmt.Errorf("%w: %q", ErrContentType, resp.Header.Get("Content-Type"))
	}

	var feed Feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, 16<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("news: decode feed: %w", err)
	}
	if feed.Status != "ok" {
		return nil, fmt.Errorf("%w: %q", ErrFeedStatus, feed.Status)
	}
	return feed.Items, nil
}

func (c *Client) record(outcome string) {
	if c.cfg.Recorder != nil {
		c.cfg.Recorder.RecordNewsFetch(outcome)
	}
}

// ArticlesFor returns the articles matched to a marker name, newest first.
func (c *Client) ArticlesFor(name string) []Article {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Article(nil), c.entries[name]...)
}

// MarkersWithNews returns the sorted names that have at least one article.
func (c *Client) MarkersWithNews() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	c.mu.Unlock()
	sort.Strings(out)
	return out
}

// LastError returns the message of the last failed refresh, or "".
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsLoading reports whether a refresh is in flight.
func (c *Client) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// FetchedAt returns when the current entries were fetched.
func (c *Client) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt
}

// NeedsRefresh reports whether the cache is empty or older than the TTL.
func (c *Client) NeedsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt.IsZero() || c.cfg.Now().Sub(c.fetchedAt) >= c.cfg.TTL
}

// SetActive pauses (false) or resumes (true) background refreshes, e.g.
// while no client is connected.
func (c *Client) SetActive(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

func (c *Client) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Run refreshes once, then checks every CheckInterval and refreshes when
// active and stale. It returns when ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.Refresh(ctx)
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.isActive() && c.NeedsRefresh() {
				c.Refresh(ctx)
			}
		}
	}
}

var _ Recorder = (*observability.GlobeCollector)(nil)
