// Package web exposes lecture sessions and content analysis over HTTP.
//
// Routes:
//
//	POST /api/lectures          start recording (body: lecture.Config)
//	POST /api/lectures/stop     stop the recording session
//	GET  /api/lectures/current  most recent session and the input level
//	GET  /api/lectures          all persisted sessions
//	GET  /api/lectures/{id}     one persisted session
//	GET  /api/lectures/events   websocket stream of notifications
//	GET  /api/languages         supported languages and dialects
//	POST /api/analyze           quiz + fact-check for submitted content
//	POST /api/explain           professional explanation of a topic
//
// plus /healthz, /readyz and /metrics when the corresponding handlers are
// configured.
package web

import (
	"context"
	"net/http"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/health"
	"github.com/MrWong99/aiprof/internal/kv"
	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// maxUploadBytes bounds request bodies, including uploaded files.
const maxUploadBytes = 10 << 20

// Lectures is the recording controller as seen by the API.
type Lectures interface {
	Start(ctx context.Context, cfg lecture.Config) (lecture.Session, error)
	Stop(ctx context.Context) (lecture.Session, bool, error)
	Current() (lecture.Session, bool)
	Level() float64
}

// Analyzer is the content analysis service as seen by the API.
type Analyzer interface {
	Analyze(ctx context.Context, c analysis.Content) (*analysis.Result, error)
	Explain(ctx context.Context, req analysis.ExplainRequest) (*analysis.Explanation, error)
}

// Config holds the dependencies of a [Server].
type Config struct {
	// Lectures is required.
	Lectures Lectures

	// Store serves persisted sessions. Nil makes the history routes
	// return 503.
	Store kv.Store

	// Analyzer serves /api/analyze and /api/explain. Nil makes them
	// return 503.
	Analyzer Analyzer

	// Events feeds /api/lectures/events. Nil makes the route return 503.
	Events *notify.Hub

	// Health adds /healthz and /readyz. Optional.
	Health *health.Handler

	// MetricsHandler is mounted on /metrics. Optional.
	MetricsHandler http.Handler

	// Metrics records HTTP latency. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New builds the route table.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/lectures", s.handleStart)
	mux.HandleFunc("POST /api/lectures/stop", s.handleStop)
	mux.HandleFunc("GET /api/lectures/current", s.handleCurrent)
	mux.HandleFunc("GET /api/lectures/events", s.handleEvents)
	mux.HandleFunc("GET /api/lectures", s.handleList)
	mux.HandleFunc("GET /api/lectures/{id}", s.handleGet)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/explain", s.handleExplain)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	s.handler = observe.Middleware(cfg.Metrics)(mux)
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
