package assets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/globeview/internal/logging"
)

type fakeResource string

func (f fakeResource) Source() string { return string(f) }

type countingLoader struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
	fail    map[string]bool
}

func newCountingLoader() *countingLoader {
	return &countingLoader{calls: map[string]int{}, fail: map[string]bool{}}
}

func (l *countingLoader) Load(ctx context.Context, source string) (Resource, error) {
	l.mu.Lock()
	l.calls[source]++
	release := l.release
	fail := l.fail[source]
	l.mu.Unlock()
	if release != nil {
		<-release
	}
	if fail {
		return nil, errors.New("404")
	}
	return fakeResource(source), nil
}

func (l *countingLoader) count(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[source]
}

type recorder struct {
	mu     sync.Mutex
	loaded []bool
}

func (r *recorder) RecordAssetLoad(family, level string, loaded bool, d time.Duration) {
	r.mu.Lock()
	r.loaded = append(r.loaded, loaded)
	r.mu.Unlock()
}

func TestEnsureLoadedStartsOneLoad(t *testing.T) {
	loader := newCountingLoader()
	loader.release = make(chan struct{})
	c := NewCache("texture", loader, map[string][]string{"high": {"high.jpg"}})

	st1, err := c.EnsureLoaded(context.Background(), "high")
	if err != nil || st1 != StateLoading {
		t.Fatalf("first EnsureLoaded = %v, %v", st1, err)
	}
	st2, err := c.EnsureLoaded(context.Background(), "high")
	if err != nil || st2 != StateLoading {
		t.Fatalf("second EnsureLoaded = %v, %v", st2, err)
	}
	close(loader.release)
	c.Wait()

	if n := loader.count("high.jpg"); n != 1 {
		t.Fatalf("loader called %d times, want 1", n)
	}
	if st, _ := c.EnsureLoaded(context.Background(), "high"); st != StateLoaded {
		t.Fatalf("third EnsureLoaded = %v, want loaded", st)
	}
	c.Wait()
	if n := loader.count("high.jpg"); n != 1 {
		t.Fatalf("loaded slot was fetched again (%d calls)", n)
	}
}

func TestFallbackSourcesInOrder(t *testing.T) {
	loader := newCountingLoader()
	loader.fail["a.jpg"] = true
	rec := &recorder{}
	c := NewCache("texture", loader, map[string][]string{"medium": {"a.jpg", "b.jpg", "c.jpg"}}, WithRecorder(rec))

	if _, err := c.EnsureLoaded(context.Background(), "medium"); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	c.Wait()

	res, ok := c.Get("medium")
	if !ok || res.Source() != "b.jpg" {
		t.Fatalf("Get = %v, %v; want b.jpg", res, ok)
	}
	if loader.count("c.jpg") != 0 {
		t.Fatalf("sources after the first success must not be tried")
	}
	if len(rec.loaded) != 1 || !rec.loaded[0] {
		t.Fatalf("recorder = %v", rec.loaded)
	}
}

func TestExhaustedSlotIsNotRetried(t *testing.T) {
	loader := newCountingLoader()
	loader.fail["a.jpg"] = true
	loader.fail["b.jpg"] = true
	c := NewCache("texture", loader, map[string][]string{"high": {"a.jpg", "b.jpg"}})

	_, _ = c.EnsureLoaded(context.Background(), "high")
	c.Wait()
	if st := c.State("high"); st != StateFailed {
		t.Fatalf("State = %v, want failed", st)
	}
	if !errors.Is(c.Err("high"), ErrSourcesExhausted) {
		t.Fatalf("Err = %v", c.Err("high"))
	}
	if _, ok := c.Get("high"); ok {
		t.Fatalf("failed slot must not expose a resource")
	}

	st, err := c.EnsureLoaded(context.Background(), "high")
	c.Wait()
	if err != nil || st != StateFailed {
		t.Fatalf("retry EnsureLoaded = %v, %v", st, err)
	}
	if loader.count("a.jpg") != 1 {
		t.Fatalf("failed slot was retried")
	}
}

func TestExhaustedLoadLogsSeverityAndLOD(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf})
	loader := newCountingLoader()
	loader.fail["a.jpg"] = true
	c := NewCache("texture", loader, map[string][]string{"high": {"a.jpg"}}, WithLogger(log))

	_, _ = c.EnsureLoaded(context.Background(), "high")
	c.Wait()

	var found bool
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("decode %q: %v", sc.Text(), err)
		}
		if rec["msg"] != "asset sources exhausted" {
			continue
		}
		found = true
		if rec["level"] != "WARN" || rec["lod"] != "high" {
			t.Fatalf("record = %v, want level WARN and lod high", rec)
		}
	}
	if !found {
		t.Fatalf("no exhaustion record in %q", buf.String())
	}
}

func TestEmptySourceListFails(t *testing.T) {
	c := NewCache("texture", newCountingLoader(), map[string][]string{"low": nil})
	_, _ = c.EnsureLoaded(context.Background(), "low")
	c.Wait()
	if c.State("low") != StateFailed {
		t.Fatalf("State = %v", c.State("low"))
	}
}

func TestUnknownLevel(t *testing.T) {
	c := NewCache[string]("texture", newCountingLoader(), nil)
	if _, err := c.EnsureLoaded(context.Background(), "ultra"); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("err = %v, want ErrUnknownLevel", err)
	}
}

func TestOnLoadedCallback(t *testing.T) {
	c := NewCache("texture", newCountingLoader(), map[int][]string{1: {"one"}, 2: {"two"}})
	var got atomic.Value
	c.OnLoaded(func(level int, res Resource) {
		got.Store(res.Source())
		if c.State(level) != StateLoaded {
			t.Errorf("callback ran before slot was marked loaded")
		}
	})
	_, _ = c.EnsureLoaded(context.Background(), 2)
	c.Wait()
	if got.Load() != "two" {
		t.Fatalf("callback saw %v", got.Load())
	}
}

func TestCanceledCallerDoesNotAbortLoad(t *testing.T) {
	loader := newCountingLoader()
	c := NewCache("texture", loader, map[string][]string{"low": {"low.jpg"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = c.EnsureLoaded(ctx, "low")
	c.Wait()
	if c.State("low") != StateLoaded {
		t.Fatalf("State = %v, want loaded", c.State("low"))
	}
}

func TestPrebuildAndClose(t *testing.T) {
	c := NewCache[int]("geometry", nil, nil)
	c.Prebuild(64, BuildSphere(8, 1))
	if st, err := c.EnsureLoaded(context.Background(), 64); err != nil || st != StateLoaded {
		t.Fatalf("prebuilt EnsureLoaded = %v, %v", st, err)
	}
	c.Close()
	if _, err := c.EnsureLoaded(context.Background(), 64); !errors.Is(err, ErrClosed) {
		t.Fatalf("err after Close = %v", err)
	}
}

func TestLoadIsSynchronous(t *testing.T) {
	loader := newCountingLoader()
	loader.fail["bad.json"] = true
	c := NewCache("borders", loader, map[string][]string{"low": {"low.json"}, "medium": {"bad.json"}})

	res, err := c.Load(context.Background(), "low")
	if err != nil || res.Source() != "low.json" {
		t.Fatalf("Load(low) = %v, %v", res, err)
	}
	if _, err := c.Load(context.Background(), "medium"); !errors.Is(err, ErrSourcesExhausted) {
		t.Fatalf("Load(medium) err = %v", err)
	}
	if res, err := c.Load(context.Background(), "low"); err != nil || res == nil {
		t.Fatalf("second Load(low) = %v, %v", res, err)
	}
	if loader.count("low.json") != 1 {
		t.Fatalf("low fetched %d times", loader.count("low.json"))
	}
}

func TestLoadReportsBusy(t *testing.T) {
	loader := newCountingLoader()
	loader.release = make(chan struct{})
	c := NewCache("texture", loader, map[string][]string{"high": {"high.jpg"}})
	_, _ = c.EnsureLoaded(context.Background(), "high")
	if _, err := c.Load(context.Background(), "high"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	close(loader.release)
	c.Wait()
}
