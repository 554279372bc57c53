// Package timectrl drives the render loop: a frame clock that advances on a
// fixed interval and hands each frame to registered listeners.
package timectrl

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// DefaultInterval is roughly one display refresh at 60 Hz.
const DefaultInterval = 16 * time.Millisecond

// Clock is the time source the engine reads. Tests substitute a manual
// FrameClock and call Step.
type Clock interface {
	Now() time.Time
}

// Mode describes how the FrameClock advances.
type Mode int

const (
	// RealTime waits one interval of wall time per frame.
	RealTime Mode = iota
	// Accelerated produces frames as fast as listeners consume them, still
	// advancing frame time by one interval per frame.
	Accelerated
)

// Frame is one tick of the clock.
type Frame struct {
	Index uint64
	Time  time.Time
	Delta time.Duration
}

// FrameClock produces frames and notifies listeners in registration order.
type FrameClock struct {
	mu       sync.RWMutex
	start    time.Time
	interval time.Duration
	mode     Mode

	current   time.Time
	index     uint64
	listeners []func(Frame)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFrameClock constructs a stopped clock positioned at start. A
// non-positive interval uses DefaultInterval.
func NewFrameClock(start time.Time, interval time.Duration, mode Mode) *FrameClock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &FrameClock{
		start:    start,
		interval: interval,
		mode:     mode,
		current:  start,
	}
}

// Now returns the time of the latest frame.
func (fc *FrameClock) Now() time.Time {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.current
}

// SetTime moves the clock to t without emitting a frame.
func (fc *FrameClock) SetTime(t time.Time) {
	fc.mu.Lock()
	fc.current = t
	fc.mu.Unlock()
}

// Interval returns the frame interval.
func (fc *FrameClock) Interval() time.Duration { return fc.interval }

// Frames returns how many frames have been emitted.
func (fc *FrameClock) Frames() uint64 {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return fc.index
}

// AddListener registers fn to run on every frame.
func (fc *FrameClock) AddListener(fn func(Frame)) {
	if fn == nil {
		return
	}
	fc.mu.Lock()
	fc.listeners = append(fc.listeners, fn)
	fc.mu.Unlock()
}

// Step advances one interval, notifies listeners and returns the frame.
func (fc *FrameClock) Step() Frame {
	fc.mu.Lock()
	fc.current = fc.current.Add(fc.interval)
	fc.index++
	f := Frame{Index: fc.index, Time: fc.current, Delta: fc.interval}
	listeners := append([]func(Frame){}, fc.listeners...)
	fc.mu.Unlock()

	for _, fn := range listeners {
		fn(f)
	}
	return f
}

// Start runs the clock from its start time in a separate goroutine until
// ctx is done, Stop is called, or duration of frame time has elapsed
// (duration <= 0 runs until stopped). The returned channel is closed when
// the loop exits.
func (fc *FrameClock) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	fc.mu.Lock()
	if fc.cancel != nil {
		fc.cancel()
	}
	fc.cancel = cancel
	fc.done = done
	fc.current = fc.start
	fc.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		var tick <-chan time.Time
		if fc.mode == RealTime {
			ticker := time.NewTicker(fc.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else {
				select {
				case <-ctx.Done():
					return
				default:
				}
				runtime.Gosched()
			}
			fc.Step()
			elapsed += fc.interval
		}
	}()
	return done
}

// Stop ends a running loop and waits for it to exit.
func (fc *FrameClock) Stop() {
	fc.mu.Lock()
	cancel, done := fc.cancel, fc.done
	fc.cancel, fc.done = nil, nil
	fc.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
