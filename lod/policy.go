// Package lod selects discrete quality levels from the continuous camera
// distance. Each resource family owns an independent threshold table.
package lod

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmptyTable is returned when a table is built without thresholds.
	ErrEmptyTable = errors.New("lod: table has no thresholds")
	// ErrUnorderedThresholds is returned when thresholds are not strictly ascending.
	ErrUnorderedThresholds = errors.New("lod: thresholds must be strictly ascending and positive")
)

// Step pairs an upper distance bound with the level used at or below it.
type Step[L comparable] struct {
	MaxDistance float64
	Level       L
}

// Table maps a camera distance to a level. Steps are ordered from the
// finest level (smallest distance) to the coarsest.
type Table[L comparable] struct {
	steps    []Step[L]
	coarsest L
}

// NewTable validates the steps and returns a table that falls back to
// coarsest beyond the last threshold.
func NewTable[L comparable](coarsest L, steps ...Step[L]) (Table[L], error) {
	if len(steps) == 0 {
		return Table[L]{}, ErrEmptyTable
	}
	prev := 0.0
	for i, s := range steps {
		if s.MaxDistance <= prev {
			return Table[L]{}, fmt.Errorf("%w: step %d has bound %v after %v", ErrUnorderedThresholds, i, s.MaxDistance, prev)
		}
		prev = s.MaxDistance
	}
	cp := make([]Step[L], len(steps))
	copy(cp, steps)
	return Table[L]{steps: cp, coarsest: coarsest}, nil
}

// MustTable is NewTable for package-level defaults; it panics on invalid
// input.
func MustTable[L comparable](coarsest L, steps ...Step[L]) Table[L] {
	t, err := NewTable(coarsest, steps...)
	if err != nil {
		panic(err)
	}
	return t
}

// Select returns the level of the smallest threshold that is >= d, or the
// coarsest level when d exceeds every threshold.
func (t Table[L]) Select(d float64) L {
	for _, s := range t.steps {
		if d <= s.MaxDistance {
			return s.Level
		}
	}
	return t.coarsest
}

// Threshold returns the upper distance bound for level, if the level has
// one. The coarsest level is unbounded.
func (t Table[L]) Threshold(level L) (float64, bool) {
	for _, s := range t.steps {
		if s.Level == level {
			return s.MaxDistance, true
		}
	}
	return 0, false
}

// Levels returns the table's levels from finest to coarsest.
func (t Table[L]) Levels() []L {
	out := make([]L, 0, len(t.steps)+1)
	for _, s := range t.steps {
		out = append(out, s.Level)
	}
	return append(out, t.coarsest)
}

// Tracker remembers the active level of one family and reports whether a
// new distance selects a different one. Re-evaluating at the same level is
// free of side effects.
type Tracker[L comparable] struct {
	mu      sync.Mutex
	table   Table[L]
	current L
}

// NewTracker starts tracking at the given level.
func NewTracker[L comparable](table Table[L], initial L) *Tracker[L] {
	return &Tracker[L]{table: table, current: initial}
}

// Evaluate returns the level selected for d and whether it differs from the
// active one. It does not change the active level; call Commit once the
// switch actually happened.
func (t *Tracker[L]) Evaluate(d float64) (L, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	target := t.table.Select(d)
	return target, target != t.current
}

// Commit records level as active.
func (t *Tracker[L]) Commit(level L) {
	t.mu.Lock()
	t.current = level
	t.mu.Unlock()
}

// Current returns the active level.
func (t *Tracker[L]) Current() L {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Table returns the tracker's threshold table.
func (t *Tracker[L]) Table() Table[L] {
	return t.table
}
