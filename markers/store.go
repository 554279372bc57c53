// Package markers is the in-memory marker store: labeled points with
// category styling, search, picking and a shared render scale.
package markers

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/globeview/core"
	"github.com/signalsfoundry/globeview/model"
)

// DefaultSearchLimit caps search results when no limit is given.
const DefaultSearchLimit = 5

// ErrDuplicate is returned when a marker with the same name and country
// already exists.
var ErrDuplicate = errors.New("markers: duplicate marker")

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventMarkerAdded EventType = iota
	EventScaleChanged
)

// Event is emitted to subscribers when the store changes.
type Event struct {
	Type   EventType
	Marker model.Marker
	Scale  float64
}

// Store is a thread-safe, insertion-ordered marker collection.
type Store struct {
	mu sync.RWMutex

	markers []model.Marker
	keys    map[string]struct{}
	scale   float64

	subs    map[int]func(Event)
	nextSub int
}

// NewStore constructs an empty store at scale 1.
func NewStore() *Store {
	return &Store{
		keys:  make(map[string]struct{}),
		scale: 1,
		subs:  make(map[int]func(Event)),
	}
}

func key(name, country string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(country)
}

// Add validates and stores a marker, normalising its category.
func (s *Store) Add(m model.Marker) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.Category = model.ParseCategory(string(m.Category))

	s.mu.Lock()
	k := key(m.Name, m.Country)
	if _, exists := s.keys[k]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s (%s)", ErrDuplicate, m.Name, m.Country)
	}
	s.keys[k] = struct{}{}
	s.markers = append(s.markers, m)
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, Event{Type: EventMarkerAdded, Marker: m})
	return nil
}

// AddAll adds markers in order, stopping at the first error.
func (s *Store) AddAll(ms []model.Marker) error {
	for i, m := range ms {
		if err := s.Add(m); err != nil {
			return fmt.Errorf("marker %d: %w", i, err)
		}
	}
	return nil
}

// List returns a snapshot of all markers in insertion order.
func (s *Store) List() []model.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Marker(nil), s.markers...)
}

// Len returns the number of markers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Get returns the first marker whose name matches case-insensitively.
func (s *Store) Get(name string) (model.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.markers {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return model.Marker{}, false
}

// Names returns the distinct marker names in insertion order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.markers))
	out := make([]string, 0, len(s.markers))
	for _, m := range s.markers {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		out = append(out, m.Name)
	}
	return out
}

// Search returns up to limit markers whose name or country contains query,
// case-insensitively, in insertion order. A non-positive limit uses
// DefaultSearchLimit.
func (s *Store) Search(query string, limit int) []model.Marker {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Marker
	for _, m := range s.markers {
		if strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Country), q) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Nearest returns the marker closest to p within maxKm. A non-positive
// maxKm disables the bound.
func (s *Store) Nearest(p core.LatLon, maxKm float64) (model.Marker, float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := -1
	bestKm := math.Inf(1)
	for i, m := range s.markers {
		d := core.Haversine(p, m.LatLon())
		if d < bestKm {
			best, bestKm = i, d
		}
	}
	if best < 0 || (maxKm > 0 && bestKm > maxKm) {
		return model.Marker{}, 0, false
	}
	return s.markers[best], bestKm, true
}

// SetScale updates the shared render scale. Subscribers are notified only
// when the value changes.
func (s *Store) SetScale(scale float64) {
	s.mu.Lock()
	if scale == s.scale {
		s.mu.Unlock()
		return
	}
	s.scale = scale
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, Event{Type: EventScaleChanged, Scale: scale})
}

// Scale returns the shared render scale.
func (s *Store) Scale() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scale
}

// RenderSize returns the on-screen size of m at time now: the category's
// base size times the shared scale times the pulse factor.
func (s *Store) RenderSize(m model.Marker, now time.Time) float64 {
	return model.VisualFor(m.Category).Size * s.Scale() * Pulse(m.Category, now)
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) snapshotSubs() []func(Event) {
	out := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// notify runs outside the store lock so subscribers may call back in.
func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
