// Package ui provides the Bubble Tea viewer for livelog.
package ui

import (
	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/store"
)

// RowsLoaded is sent after a history load or a live poll. Rows is the full
// flattened session, newest first.
type RowsLoaded struct {
	Rows   []store.Row
	Result assembler.Result
	Err    error
}

// LiveToggled is sent when live mode is switched on or off.
type LiveToggled struct {
	On bool
}

// SessionReset is sent after the session has been discarded and reseeded.
type SessionReset struct {
	Err error
}
