package page

import (
	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/store"
)

// Envelope is the wire form of a Page. Cursor values are millisecond
// timestamps; the optional id fields carry the tie-break half of the key.
type Envelope struct {
	Data         []store.Row `json:"data"`
	NextCursor   *int64      `json:"nextCursor"`
	NextCursorID string      `json:"nextCursorId,omitempty"`
	PrevCursor   *int64      `json:"prevCursor"`
	PrevCursorID string      `json:"prevCursorId,omitempty"`
}

// Envelope converts p to its wire form. Data is never nil.
func (p Page) Envelope() Envelope {
	data := p.Rows
	if data == nil {
		data = []store.Row{}
	}
	env := Envelope{
		Data:       data,
		NextCursor: p.Next.Value(),
		PrevCursor: p.Prev.Value(),
	}
	if !p.Next.IsNull() {
		env.NextCursorID = p.Next.Key().ID
	}
	if !p.Prev.IsNull() {
		env.PrevCursorID = p.Prev.Key().ID
	}
	return env
}

// Page rebuilds the Page an envelope was encoded from.
func (e Envelope) Page() Page {
	return Page{
		Rows: e.Data,
		Next: cursor.FromWire(cursor.Next, e.NextCursor, e.NextCursorID),
		Prev: cursor.FromWire(cursor.Prev, e.PrevCursor, e.PrevCursorID),
	}
}
