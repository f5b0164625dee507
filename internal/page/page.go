// Package page implements the Page Fetcher: one range query per request,
// with the follow-up cursor derived from the result.
package page

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/store"
)

// DefaultSize is the number of rows in a history page.
const DefaultSize = 40

// Page is one batch of rows, newest first, plus the cursors that resume
// paging from it. Only the cursor for the producing direction is meaningful;
// the other one is null.
type Page struct {
	Rows []store.Row
	Next cursor.Cursor
	Prev cursor.Cursor
}

// Empty reports whether the page has no rows.
func (p Page) Empty() bool { return len(p.Rows) == 0 }

// Source produces pages. Implemented by Fetcher and by the remote client.
type Source interface {
	FetchPage(ctx context.Context, c cursor.Cursor) (Page, error)
}

// Querier is the range query adapter a Fetcher reads from. *store.Store
// satisfies it.
type Querier interface {
	Query(ctx context.Context, r store.Range) ([]store.Row, error)
}

// Fetcher turns cursors into pages. Safe for concurrent use.
type Fetcher struct {
	q       Querier
	size    int
	clock   clock.Clock
	timeout time.Duration
	events  *otel.Logger
}

// NewFetcher creates a Fetcher reading size-row history pages from q.
// A non-positive size selects DefaultSize; a nil clock selects the wall clock.
func NewFetcher(q Querier, size int, clk clock.Clock) *Fetcher {
	if size <= 0 {
		size = DefaultSize
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Fetcher{q: q, size: size, clock: clk}
}

// SetTimeout bounds every query. Zero disables the bound.
func (f *Fetcher) SetTimeout(d time.Duration) { f.timeout = d }

// SetEvents attaches a structured event log.
func (f *Fetcher) SetEvents(l *otel.Logger) { f.events = l }

// Size returns the history page size.
func (f *Fetcher) Size() int { return f.size }

// FetchPage runs one range query for c. An invalid cursor returns
// cursor.ErrInvalidCursor; any adapter failure returns a *QueryError and
// never a partial page.
func (f *Fetcher) FetchPage(ctx context.Context, c cursor.Cursor) (Page, error) {
	if err := c.Validate(); err != nil {
		return Page{}, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		p   Page
		err error
	)
	if c.Direction() == cursor.Next {
		p, err = f.older(ctx, c)
	} else {
		p, err = f.newer(ctx, c)
	}
	dur := time.Since(start)

	if err != nil {
		qerr := &QueryError{Direction: c.Direction(), Cursor: c.String(), Err: err}
		f.events.Emit(otel.Event{
			Level:     otel.LevelWarn,
			Kind:      otel.KindPageError,
			Comp:      "page",
			Direction: string(c.Direction()),
			Cursor:    c.String(),
			Dur:       dur,
			Err:       err.Error(),
		})
		logging.Warn("page fetch failed", "dir", c.Direction(), "cursor", c.String(), "error", err)
		return Page{}, qerr
	}

	f.events.Emit(otel.Event{
		Level:     otel.LevelInfo,
		Kind:      otel.KindPageFetch,
		Comp:      "page",
		Direction: string(c.Direction()),
		Cursor:    c.String(),
		Dur:       dur,
		Count:     len(p.Rows),
	})
	logging.Debug("page fetched", "dir", c.Direction(), "cursor", c.String(), "rows", len(p.Rows), "dur", dur)
	return p, nil
}

// older fetches one history page strictly below c.
func (f *Fetcher) older(ctx context.Context, c cursor.Cursor) (Page, error) {
	rows, err := f.q.Query(ctx, store.Range{
		Direction: cursor.Next,
		From:      c.Key(),
		Bounded:   !c.IsNull(),
		Limit:     f.size,
	})
	if err != nil {
		return Page{}, err
	}
	if len(rows) > f.size {
		return Page{}, fmt.Errorf("adapter returned %d rows for limit %d", len(rows), f.size)
	}

	p := Page{Rows: rows, Next: cursor.End(cursor.Next), Prev: cursor.End(cursor.Prev)}
	if len(rows) == f.size {
		p.Next = cursor.At(cursor.Next, rows[len(rows)-1].Key())
	}
	return p, nil
}

// newer fetches every row above c up to a boundary captured before the query.
// The returned cursor sits at the boundary, not at a row, so an idle poll
// still moves forward. Rows already returned at the boundary millisecond are
// excluded from the next poll by carrying the largest such id.
func (f *Fetcher) newer(ctx context.Context, c cursor.Cursor) (Page, error) {
	boundary := f.clock.Now().UnixMilli()

	rows, err := f.q.Query(ctx, store.Range{
		Direction: cursor.Prev,
		From:      c.Key(),
		Bounded:   true,
		To:        boundary,
	})
	if err != nil {
		return Page{}, err
	}

	next := cursor.Key{Timestamp: boundary}
	for _, r := range rows {
		if r.Timestamp == boundary && r.ID > next.ID {
			next.ID = r.ID
		}
	}
	if next.Less(c.Key()) {
		next = c.Key()
	}

	return Page{Rows: rows, Next: cursor.End(cursor.Next), Prev: cursor.At(cursor.Prev, next)}, nil
}
