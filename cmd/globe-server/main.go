package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/globeview/globe"
	"github.com/signalsfoundry/globeview/internal/config"
	"github.com/signalsfoundry/globeview/internal/fetch"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"github.com/signalsfoundry/globeview/internal/server"
	"github.com/signalsfoundry/globeview/markers"
	"github.com/signalsfoundry/globeview/news"
	"github.com/signalsfoundry/globeview/timectrl"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional env file")
	httpAddr := flag.String("http-addr", "", "HTTP address for the API, stream and /metrics (overrides GLOBE_HTTP_ADDR)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address for the gRPC health service (overrides GLOBE_GRPC_ADDR)")
	flag.Parse()

	boot := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*envFile, boot)
	if err != nil {
		boot.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	httpLis, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.Server.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(stopCtx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "globe server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is done. It owns both listeners.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	log = logging.OrNoop(log)

	collector, err := observability.NewGlobeCollector(nil)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	fetcher := fetch.NewClient(cfg.Data.BaseDir, 30*time.Second)
	dataset, err := markers.LoadDataset(ctx, fetcher, cfg.Data.Markers)
	if err != nil {
		return err
	}
	log.Info(ctx, "loaded markers", logging.String("path", cfg.Data.Markers), logging.Int("count", len(dataset)))

	g, err := globe.New(globe.Config{
		Fetcher:  fetcher,
		Textures: cfg.Data.Textures,
		Layers:   cfg.Data.Layers,
		Borders:  cfg.Data.Borders,
		Markers:  dataset,
		News:     newsConfig(cfg, log),
		Logger:   log,
		Metrics:  collector,
	})
	if err != nil {
		return err
	}
	defer g.Close()
	if err := g.Init(ctx); err != nil {
		return err
	}

	clock := timectrl.NewFrameClock(time.Now(), cfg.Server.FrameInterval, timectrl.RealTime)
	clock.AddListener(func(f timectrl.Frame) {
		g.Frame(f.Time)
	})
	clock.Start(ctx, 0)
	defer clock.Stop()

	if nc := g.News(); nc != nil {
		go nc.Run(ctx)
	}

	api := server.New(g, server.Options{
		StreamInterval: cfg.Server.StreamRate,
		Logger:         log,
		Metrics:        collector,
	})
	httpSrv := &http.Server{
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	grpcSrv, health := server.NewGRPCServer(log, collector)

	errCh := make(chan error, 2)
	go func() {
		log.Info(ctx, "serving HTTP", logging.String("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info(ctx, "serving gRPC health", logging.String("addr", grpcLis.Addr().String()))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	server.SetServing(health, true)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down globe server")
	server.SetServing(health, false)
	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	return runErr
}

func newsConfig(cfg *config.Config, log logging.Logger) *news.Config {
	if cfg.News.Disabled {
		return nil
	}
	nc := &news.Config{
		FeedURL:       cfg.News.FeedURL,
		TTL:           cfg.News.TTL,
		Timeout:       cfg.News.Timeout,
		CheckInterval: cfg.News.CheckInterval,
	}
	if cfg.Redis.Addr != "" {
		nc.Store = news.NewRedisStore(news.OpenRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), cfg.Redis.Key)
		log.Info(context.Background(), "sharing news snapshots through redis", logging.String("addr", cfg.Redis.Addr))
	}
	return nc
}
