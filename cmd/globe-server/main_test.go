package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/globeview/globe"
	"github.com/signalsfoundry/globeview/internal/config"
	"github.com/signalsfoundry/globeview/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const testMarkers = `[
 {"name":"Paris","country":"France","lat":48.8566,"lon":2.3522,"type":"capital","population":2100000},
 {"name":"Lyon","country":"France","lat":45.764,"lon":4.8357,"type":"major"}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "markers.json"), []byte(testMarkers), 0o644); err != nil {
		t.Fatalf("write markers: %v", err)
	}
	vars := map[string]string{
		"GLOBE_DATA_DIR":        dir,
		"GLOBE_MARKERS":         "markers.json",
		"GLOBE_TEXTURE_LOW":     "missing-low.jpg",
		"GLOBE_TEXTURE_MEDIUM":  "missing-medium.jpg",
		"GLOBE_TEXTURE_HIGH":    "missing-high.jpg",
		"GLOBE_LAYER_BUMP":      "missing-bump.png",
		"GLOBE_LAYER_SPECULAR":  "missing-specular.png",
		"GLOBE_LAYER_NIGHT":     "missing-night.jpg",
		"GLOBE_LAYER_CLOUDS":    "missing-clouds.png",
		"GLOBE_BORDERS_LOW":     "missing-110m.geojson",
		"GLOBE_BORDERS_MEDIUM":  "missing-50m.geojson",
		"GLOBE_NEWS_DISABLED":   "true",
		"GLOBE_FRAME_INTERVAL":  "5ms",
		"GLOBE_STREAM_INTERVAL": "10ms",
	}
	cfg, err := config.FromLookup(func(k string) string { return vars[k] }, nil)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestGlobeServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(runCtx, testConfig(t), logging.New(logging.Config{Level: "warn"}), httpLis, grpcLis)
	}()

	conn, err := grpc.DialContext(ctx, grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.DialContext: %v", err)
	}
	defer conn.Close()
	health := healthpb.NewHealthClient(conn)
	for {
		resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: "globeview.Globe"})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/api/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()
	var state globe.FrameState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Markers) != 2 {
		t.Fatalf("markers = %d, want 2", len(state.Markers))
	}
	if state.Texture.Level != "" {
		t.Fatalf("texture level = %q with every texture missing", state.Texture.Level)
	}

	stop()
	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunFailsWithoutMarkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Markers = "nope.json"

	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer httpLis.Close()
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer grpcLis.Close()

	if err := run(context.Background(), cfg, nil, httpLis, grpcLis); err == nil {
		t.Fatalf("run succeeded without a marker dataset")
	}
}
