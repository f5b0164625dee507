// Package api exposes the page fetcher over HTTP.
//
// Routes:
//
//	GET  /api/v1/rows?direction=next|prev&cursor=<ms>&cursorId=<id>
//	POST /api/v1/rows
//	GET  /api/v1/stats
//	GET  /debug/events?n=<count>&kind=<prefix>
//	GET  /metrics
//	GET  /healthz
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// Log is the write and summary side of the event store. *store.Store
// satisfies it.
type Log interface {
	Append(ctx context.Context, rows []store.Row) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Server routes HTTP requests to a page source and an event store.
type Server struct {
	src      page.Source
	log      Log
	events   *otel.Logger
	ring     *otel.RingBuffer
	metrics  *Collector
	registry *prometheus.Registry
	router   *mux.Router
}

// NewServer builds the router. events and ring may be nil.
func NewServer(src page.Source, log Log, events *otel.Logger, ring *otel.RingBuffer) *Server {
	s := &Server{
		src:      src,
		log:      log,
		events:   events,
		ring:     ring,
		metrics:  NewMetricsCollector(),
		registry: prometheus.NewRegistry(),
		router:   mux.NewRouter(),
	}
	s.registry.MustRegister(s.metrics)

	r := s.router
	r.Use(s.instrument)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rows", s.handleRows).Methods(http.MethodGet)
	api.HandleFunc("/rows", s.handleIngest).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/debug/events", s.handleEvents).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the registry /metrics serves.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
		s.events.Emit(otel.Event{
			Level:  otel.LevelDebug,
			Kind:   otel.KindHTTPRequest,
			Comp:   "api",
			Path:   r.Method + " " + route,
			Status: sw.status,
			Dur:    time.Since(start),
		})
	})
}
