// Package server exposes the OpenAI-compatible transcription API.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/loqalabs/loqa-scribe/internal/auth"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/jobs"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-scribe/internal/server"

// Notifier receives completed jobs.
type Notifier interface {
	Completed(evt protocol.TranscriptCompleted)
}

// Deps are the collaborators of the HTTP server. Jobs, Notifier, Auth and
// Metrics may be nil.
type Deps struct {
	Config     config.Config
	Recognizer stt.Recognizer
	Jobs       *jobs.Store
	Notifier   Notifier
	Auth       *auth.Authenticator
	Metrics    http.Handler
	Ready      func() bool
	Logger     *slog.Logger
}

type Server struct {
	cfg        config.Config
	recognizer stt.Recognizer
	jobs       *jobs.Store
	notifier   Notifier
	auth       *auth.Authenticator
	ready      func() bool
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *serverMetrics
	router     *mux.Router
}

func New(d Deps) (*Server, error) {
	if d.Recognizer == nil {
		return nil, fmt.Errorf("server requires a recognizer")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	m, err := newServerMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("create http metrics: %w", err)
	}
	s := &Server{
		cfg:        d.Config,
		recognizer: d.Recognizer,
		jobs:       d.Jobs,
		notifier:   d.Notifier,
		auth:       d.Auth,
		ready:      d.Ready,
		logger:     d.Logger.With(slog.String("component", "http")),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    m,
	}
	s.router = s.routes(d.Metrics)
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.accessLog, s.instrument)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/healthcheck", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	if metricsHandler != nil {
		r.Handle(s.cfg.Telemetry.MetricsPath, metricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/v1").Subrouter()
	if s.auth != nil {
		api.Use(s.auth.Middleware)
	}
	api.HandleFunc("/audio/transcriptions", s.handleTranscription(stt.TaskTranscribe)).Methods(http.MethodPost)
	api.HandleFunc("/audio/translations", s.handleTranscription(stt.TaskTranslate)).Methods(http.MethodPost)
	api.HandleFunc("/models", s.handleListModels).Methods(http.MethodGet)
	api.HandleFunc("/models/{id}", s.handleGetModel).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.URL.Path == "/healthcheck" {
		_, _ = w.Write([]byte("OK"))
		return
	}
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.ready == nil || s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
