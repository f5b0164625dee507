package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

const (
	// maxIngestBytes bounds a POST /rows body.
	maxIngestBytes = 4 << 20

	// retryAfterSeconds is advertised on 503 responses.
	retryAfterSeconds = 2

	defaultEventCount = 100
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// IngestResult is the body of a successful POST /rows.
type IngestResult struct {
	Inserted int `json:"inserted"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("write response", "error", err)
	}
}

// writeError maps the pager error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cursor.ErrInvalidCursor):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
	case errors.Is(err, page.ErrQueryFailed):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: err.Error(), Retryable: true})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: err.Error()})
	}
}

func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := cursor.Parse(q.Get("direction"), q.Get("cursor"), q.Get("cursorId"))
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	p, err := s.src.FetchPage(r.Context(), c)
	s.metrics.fetchDuration.WithLabelValues(string(c.Direction())).Observe(time.Since(start).Seconds())
	if err != nil {
		writeError(w, err)
		return
	}

	s.metrics.rowsServed.WithLabelValues(string(c.Direction())).Add(float64(len(p.Rows)))
	writeJSON(w, http.StatusOK, p.Envelope())
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var rows []store.Row
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err := dec.Decode(&rows); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: fmt.Sprintf("decode rows: %v", err)})
		return
	}
	for i, row := range rows {
		if row.Timestamp < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: fmt.Sprintf("row %d: negative timestamp", i)})
			return
		}
	}

	n, err := s.log.Append(r.Context(), rows)
	if err != nil {
		s.events.Error(otel.KindStoreError, "api", err)
		logging.Error("ingest failed", "rows", len(rows), "error", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: err.Error(), Retryable: true})
		return
	}

	s.metrics.rowsIngested.Add(float64(n))
	s.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStoreAppend, Comp: "api", Count: n})
	writeJSON(w, http.StatusCreated, IngestResult{Inserted: n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.log.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: err.Error(), Retryable: true})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := defaultEventCount
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "n must be a positive integer"})
			return
		}
		n = parsed
	}

	events := []otel.Event{}
	if s.ring != nil {
		all := s.ring.Snapshot()
		if prefix := r.URL.Query().Get("kind"); prefix != "" {
			all = s.ring.Matching(prefix)
		}
		if len(all) > n {
			all = all[len(all)-n:]
		}
		events = append(events, all...)
	}
	writeJSON(w, http.StatusOK, events)
}
