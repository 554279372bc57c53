package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GlobeCollector bundles Prometheus metrics for the globe engine and its
// transports.
type GlobeCollector struct {
	gatherer prometheus.Gatherer

	LODSwitches       *prometheus.CounterVec
	AssetLoads        *prometheus.CounterVec
	AssetLoadDuration *prometheus.HistogramVec
	CameraDistance    prometheus.Gauge
	MarkerScale       prometheus.Gauge
	BorderTier        *prometheus.GaugeVec
	NewsFetches       *prometheus.CounterVec
	NewsMatched       prometheus.Gauge
	StreamClients     prometheus.Gauge
	RPCRequests       *prometheus.CounterVec
	RPCDurations      *prometheus.HistogramVec
}

// NewGlobeCollector registers globe metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewGlobeCollector(reg prometheus.Registerer) (*GlobeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	switches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_lod_switches_total",
		Help: "Number of applied level switches, labeled by resource family and target level.",
	}, []string{"family", "level"}), "globe_lod_switches_total")
	if err != nil {
		return nil, err
	}

	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_asset_loads_total",
		Help: "Completed asset loads, labeled by family, level, and outcome (loaded|failed).",
	}, []string{"family", "level", "outcome"}), "globe_asset_loads_total")
	if err != nil {
		return nil, err
	}

	loadDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_asset_load_duration_seconds",
		Help:    "Wall time spent walking an asset's source list.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"family"}), "globe_asset_load_duration_seconds")
	if err != nil {
		return nil, err
	}

	distance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_camera_distance",
		Help: "Current camera distance from the globe centre in scene units.",
	}), "globe_camera_distance")
	if err != nil {
		return nil, err
	}

	scale, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_marker_scale",
		Help: "Current marker scale factor.",
	}), "globe_marker_scale")
	if err != nil {
		return nil, err
	}

	tier, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "globe_border_tier_active",
		Help: "1 for the border tier currently attached to the scene, 0 otherwise.",
	}, []string{"level"}), "globe_border_tier_active")
	if err != nil {
		return nil, err
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_news_fetches_total",
		Help: "News refresh attempts, labeled by outcome (ok|cached|busy|error).",
	}, []string{"outcome"}), "globe_news_fetches_total")
	if err != nil {
		return nil, err
	}

	matched, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_news_markers_matched",
		Help: "Number of markers with at least one matched article.",
	}), "globe_news_markers_matched")
	if err != nil {
		return nil, err
	}

	clients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_stream_clients",
		Help: "Connected WebSocket frame stream clients.",
	}), "globe_stream_clients")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"}), "globe_grpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "globe_grpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &GlobeCollector{
		gatherer:          gatherer,
		LODSwitches:       switches,
		AssetLoads:        loads,
		AssetLoadDuration: loadDurations,
		CameraDistance:    distance,
		MarkerScale:       scale,
		BorderTier:        tier,
		NewsFetches:       fetches,
		NewsMatched:       matched,
		StreamClients:     clients,
		RPCRequests:       requests,
		RPCDurations:      durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GlobeCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordLODSwitch counts an applied level switch.
func (c *GlobeCollector) RecordLODSwitch(family, level string) {
	if c == nil || c.LODSwitches == nil {
		return
	}
	c.LODSwitches.WithLabelValues(family, level).Inc()
}

// RecordAssetLoad records the outcome and duration of one slot load.
func (c *GlobeCollector) RecordAssetLoad(family, level string, loaded bool, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "failed"
	if loaded {
		outcome = "loaded"
	}
	if c.AssetLoads != nil {
		c.AssetLoads.WithLabelValues(family, level, outcome).Inc()
	}
	if c.AssetLoadDuration != nil {
		c.AssetLoadDuration.WithLabelValues(family).Observe(d.Seconds())
	}
}

// SetCameraDistance updates the camera distance gauge.
func (c *GlobeCollector) SetCameraDistance(d float64) {
	if c == nil || c.CameraDistance == nil {
		return
	}
	c.CameraDistance.Set(d)
}

// SetMarkerScale updates the marker scale gauge.
func (c *GlobeCollector) SetMarkerScale(s float64) {
	if c == nil || c.MarkerScale == nil {
		return
	}
	c.MarkerScale.Set(s)
}

// SetBorderTier marks level as the only attached border tier. An empty
// level clears every tier.
func (c *GlobeCollector) SetBorderTier(level string, levels ...string) {
	if c == nil || c.BorderTier == nil {
		return
	}
	for _, l := range levels {
		v := 0.0
		if l == level {
			v = 1
		}
		c.BorderTier.WithLabelValues(l).Set(v)
	}
}

// RecordNewsFetch counts a refresh attempt by outcome.
func (c *GlobeCollector) RecordNewsFetch(outcome string) {
	if c == nil || c.NewsFetches == nil {
		return
	}
	c.NewsFetches.WithLabelValues(outcome).Inc()
}

// SetNewsMatched updates the matched-marker gauge.
func (c *GlobeCollector) SetNewsMatched(n int) {
	if c == nil || c.NewsMatched == nil {
		return
	}
	c.NewsMatched.Set(float64(n))
}

// AddStreamClients adjusts the connected stream client gauge by delta.
func (c *GlobeCollector) AddStreamClients(delta int) {
	if c == nil || c.StreamClients == nil {
		return
	}
	c.StreamClients.Add(float64(delta))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *GlobeCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and
// method components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
