package timectrl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestFrameClockSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFrameClock(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	fc.SetTime(newNow)

	if got := fc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestFrameClockDefaultInterval(t *testing.T) {
	fc := NewFrameClock(time.Time{}, 0, RealTime)
	if fc.Interval() != DefaultInterval {
		t.Fatalf("Interval() = %v, want %v", fc.Interval(), DefaultInterval)
	}
}

func TestStepNotifiesListenersInOrder(t *testing.T) {
	start := time.Unix(0, 0)
	fc := NewFrameClock(start, 10*time.Millisecond, Accelerated)

	var order []int
	var last Frame
	fc.AddListener(func(f Frame) { order = append(order, 1); last = f })
	fc.AddListener(func(Frame) { order = append(order, 2) })
	fc.AddListener(nil)

	fc.Step()
	f := fc.Step()
	if f.Index != 2 || !f.Time.Equal(start.Add(20*time.Millisecond)) || f.Delta != 10*time.Millisecond {
		t.Fatalf("frame = %+v", f)
	}
	if last != f {
		t.Fatalf("listener saw %+v, want %+v", last, f)
	}
	if len(order) != 4 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("listener order = %v", order)
	}
}

func TestListenerAddedDuringFrameStartsNextFrame(t *testing.T) {
	fc := NewFrameClock(time.Unix(0, 0), time.Millisecond, Accelerated)

	var late []uint64
	fc.AddListener(func(f Frame) {
		if f.Index == 1 {
			fc.AddListener(func(f Frame) { late = append(late, f.Index) })
		}
	})

	fc.Step()
	if len(late) != 0 {
		t.Fatalf("listener added mid-frame ran in the same frame: %v", late)
	}
	fc.Step()
	fc.Step()
	if len(late) != 2 || late[0] != 2 || late[1] != 3 {
		t.Fatalf("late listener frames = %v, want [2 3]", late)
	}
}

func TestStartRunsForDuration(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFrameClock(start, 5*time.Millisecond, Accelerated)

	done := fc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := fc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if fc.Frames() != 3 {
		t.Fatalf("Frames() = %d, want 3", fc.Frames())
	}
}

func TestStopEndsRealTimeLoop(t *testing.T) {
	fc := NewFrameClock(time.Unix(0, 0), time.Millisecond, RealTime)
	var frames atomic.Int32
	fc.AddListener(func(Frame) { frames.Add(1) })

	done := fc.Start(context.Background(), 0)
	deadline := time.Now().Add(2 * time.Second)
	for frames.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop produced %d frames", frames.Load())
		}
		time.Sleep(time.Millisecond)
	}
	fc.Stop()
	select {
	case <-done:
	default:
		t.Fatalf("Stop returned before the loop exited")
	}
	fc.Stop()
}

func TestContextCancelEndsLoop(t *testing.T) {
	fc := NewFrameClock(time.Unix(0, 0), time.Millisecond, Accelerated)
	ctx, cancel := context.WithCancel(context.Background())
	done := fc.Start(ctx, 0)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop ignored cancellation")
	}
}
