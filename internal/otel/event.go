// Package otel provides structured observability for livelog.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps the most recent events in memory for the
// /debug/events endpoint.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Pager events
	KindPageFetch EventKind = "page.fetch"
	KindPageError EventKind = "page.error"
	KindPageMerge EventKind = "page.merge"

	// Live mode events
	KindLiveStart EventKind = "live.start"
	KindLiveStop  EventKind = "live.stop"
	KindLivePoll  EventKind = "live.poll"
	KindLiveError EventKind = "live.error"

	// Store events
	KindStoreAppend EventKind = "store.append"
	KindStoreError  EventKind = "store.error"

	// HTTP events
	KindHTTPRequest EventKind = "http.request"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"` // component: "page", "assembler", "live", "api", "main"
	SessionID string         `json:"session_id,omitempty"`
	Direction string         `json:"dir,omitempty"`    // "next" or "prev"
	Cursor    string         `json:"cursor,omitempty"` // cursor the fetch started from
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Status    int            `json:"status,omitempty"` // HTTP status
	Path      string         `json:"path,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
