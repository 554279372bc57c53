// Package server exposes a Globe over HTTP, a WebSocket frame stream and a
// gRPC health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/globeview/globe"
	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"github.com/signalsfoundry/globeview/model"
	"github.com/signalsfoundry/globeview/news"
)

// DefaultStreamInterval is how often connected clients receive a frame.
const DefaultStreamInterval = 100 * time.Millisecond

// Options configures a Server.
type Options struct {
	StreamInterval time.Duration
	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string
	Logger         logging.Logger
	Metrics        *observability.GlobeCollector
}

// Server serves one Globe.
type Server struct {
	globe    *globe.Globe
	log      logging.Logger
	metrics  *observability.GlobeCollector
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// New returns a server for g.
func New(g *globe.Globe, opts Options) *Server {
	interval := opts.StreamInterval
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	s := &Server{
		globe:    g,
		log:      logging.OrNoop(opts.Logger),
		metrics:  opts.Metrics,
		interval: interval,
	}
	allowed := append([]string(nil), opts.AllowedOrigins...)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, a := range allowed {
				if origin == a {
					return true
				}
			}
			return false
		},
	}
	if nc := g.News(); nc != nil {
		nc.SetActive(false)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/markers/{name}/news", s.handleNews)
	mux.HandleFunc("POST /api/fly", s.handleFly)
	mux.HandleFunc("POST /api/borders", s.handleBorders)
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.globe.Snapshot())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results := s.globe.Search(r.URL.Query().Get("q"))
	if results == nil {
		results = []model.Marker{}
	}
	writeJSON(w, http.StatusOK, results)
}

type newsResponse struct {
	Marker    string         `json:"marker"`
	Articles  []news.Article `json:"articles"`
	Loading   bool           `json:"loading"`
	LastError string         `json:"lastError,omitempty"`
	FetchedAt *time.Time     `json:"fetchedAt,omitempty"`
}

// handleNews refreshes a stale cache before answering, so the first popup
// after the TTL shows current articles.
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	nc := s.globe.News()
	if nc != nil && nc.NeedsRefresh() {
		nc.Refresh(r.Context())
	}
	articles, err := s.globe.ArticlesFor(name)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	resp := newsResponse{Marker: name, Articles: articles}
	if nc != nil {
		resp.Loading = nc.IsLoading()
		resp.LastError = nc.LastError()
		if at := nc.FetchedAt(); !at.IsZero() {
			resp.FetchedAt = &at
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFly(w http.ResponseWriter, r *http.Request) {
	m, err := s.globe.FlyToMarker(r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}

func (s *Server) handleBorders(w http.ResponseWriter, r *http.Request) {
	visible, err := strconv.ParseBool(r.URL.Query().Get("visible"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "visible must be true or false"})
		return
	}
	s.globe.SetBordersVisible(visible)
	writeJSON(w, http.StatusOK, s.globe.Snapshot().Borders)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, globe.ErrUnknownMarker):
		status = http.StatusNotFound
	case errors.Is(err, globe.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error(ctx, "request failed", logging.Err(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
