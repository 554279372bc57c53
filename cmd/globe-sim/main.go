package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/globeview/controls"
	"github.com/signalsfoundry/globeview/globe"
	"github.com/signalsfoundry/globeview/internal/config"
	"github.com/signalsfoundry/globeview/internal/fetch"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/markers"
	"github.com/signalsfoundry/globeview/timectrl"
)

// Options scripts a headless run.
type Options struct {
	Frames  int
	Every   int
	Fly     string
	ZoomIn  int
	ZoomOut int
	MapView bool
	// Offline refuses http(s) sources so only local assets are read.
	Offline bool
}

// Summary is one line of simulation output.
type Summary struct {
	Frame     uint64  `json:"frame"`
	Distance  float64 `json:"distance"`
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Texture   string  `json:"texture"`
	Target    string  `json:"target"`
	Geometry  string  `json:"geometry"`
	Borders   string  `json:"borders"`
	Scale     float64 `json:"markerScale"`
	Clouds    float64 `json:"cloudRotation"`
}

func summarize(s globe.FrameState) Summary {
	return Summary{
		Frame:     s.Frame,
		Distance:  s.Distance,
		CenterLat: s.Orientation.Center.Lat,
		CenterLon: s.Orientation.Center.Lon,
		Texture:   s.Texture.Level,
		Target:    s.Texture.Target,
		Geometry:  s.Geometry.Level,
		Borders:   s.Borders.Active,
		Scale:     s.MarkerScale,
		Clouds:    s.CloudRotation,
	}
}

func main() {
	envFile := flag.String("env", ".env", "Path to an optional env file")
	frames := flag.Int("frames", 240, "number of frames to simulate")
	every := flag.Int("every", 30, "print a summary every N frames")
	fly := flag.String("fly", "", "marker to fly to before the first frame")
	zoomIn := flag.Int("zoom-in", 0, "zoom-in button presses before the first frame")
	zoomOut := flag.Int("zoom-out", 0, "zoom-out button presses before the first frame")
	mapView := flag.Bool("map", false, "use the flat map backend instead of the orbit camera")
	offline := flag.Bool("offline", false, "skip remote asset sources")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*envFile, log)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}

	opts := Options{
		Frames:  *frames,
		Every:   *every,
		Fly:     *fly,
		ZoomIn:  *zoomIn,
		ZoomOut: *zoomOut,
		MapView: *mapView,
		Offline: *offline,
	}
	if err := simulate(ctx, cfg, opts, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// simulate runs opts.Frames accelerated frames and writes a JSON Summary
// line every opts.Every frames and after the last one.
func simulate(ctx context.Context, cfg *config.Config, opts Options, log logging.Logger, w io.Writer) error {
	if opts.Frames <= 0 {
		return errors.New("frames must be positive")
	}
	if opts.Every <= 0 {
		opts.Every = opts.Frames
	}

	var fetcher fetch.Fetcher = fetch.NewClient(cfg.Data.BaseDir, 30*time.Second)
	if opts.Offline {
		fetcher = offlineFetcher(fetcher)
	}
	dataset, err := markers.LoadDataset(ctx, fetcher, cfg.Data.Markers)
	if err != nil {
		return err
	}

	var ctrl controls.Controls = controls.NewOrbit(controls.DefaultConfig())
	if opts.MapView {
		ctrl = controls.NewMapView(controls.DefaultConfig())
	}
	g, err := globe.New(globe.Config{
		Controls:     ctrl,
		Fetcher:      fetcher,
		Textures:     cfg.Data.Textures,
		Layers:       cfg.Data.Layers,
		Borders:      cfg.Data.Borders,
		Markers:      dataset,
		LazyGeometry: true,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer g.Close()
	if err := g.Init(ctx); err != nil {
		return err
	}

	for i := 0; i < opts.ZoomIn; i++ {
		ctrl.ZoomIn()
	}
	for i := 0; i < opts.ZoomOut; i++ {
		ctrl.ZoomOut()
	}
	if opts.Fly != "" {
		if _, err := g.FlyToMarker(opts.Fly); err != nil {
			return err
		}
	}

	interval := cfg.Server.FrameInterval
	clock := timectrl.NewFrameClock(time.Now().UTC(), interval, timectrl.Accelerated)
	enc := json.NewEncoder(w)
	var writeErr error
	clock.AddListener(func(f timectrl.Frame) {
		state := g.Frame(f.Time)
		if writeErr != nil {
			return
		}
		if int(f.Index)%opts.Every == 0 || int(f.Index) == opts.Frames {
			writeErr = enc.Encode(summarize(state))
		}
	})

	<-clock.Start(ctx, time.Duration(opts.Frames)*interval)
	if writeErr != nil {
		return fmt.Errorf("write summary: %w", writeErr)
	}
	return ctx.Err()
}

func offlineFetcher(next fetch.Fetcher) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, uri string) ([]byte, error) {
		if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
			return nil, fmt.Errorf("offline: %s", uri)
		}
		return next.Fetch(ctx, uri)
	})
}
