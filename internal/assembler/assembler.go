// Package assembler maintains the page sequence of one browsing session.
//
// Live pages accumulate in a head deque and history pages in a tail deque,
// joined at the pivot where the session was seeded. Each direction has its
// own cursor and is serialized against itself; the two directions run
// independently and only share the merge step.
package assembler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// Result describes the effect of one load.
type Result struct {
	Direction cursor.Direction
	Fetched   int           // rows returned by the source
	Added     int           // rows merged after dedup
	Exhausted bool          // no older history remains
	Cursor    cursor.Cursor // stored cursor for Direction after the load
	Stale     bool          // the session was reset while the fetch ran; nothing was merged
}

// Assembler owns the page sequence of one session. Safe for concurrent use.
type Assembler struct {
	src    page.Source
	events *otel.Logger
	group  singleflight.Group

	mu         sync.Mutex
	gen        uint64
	head       []page.Page // live pages, oldest first
	tail       []page.Page // history pages, newest first
	headCursor cursor.Cursor
	tailCursor cursor.Cursor
	seen       map[cursor.Key]struct{}
}

// New creates an assembler whose session starts at seed. Rows older than
// seed are reached with LoadOlder and rows at or after it with LoadNewer.
// Callers reading a remote source should seed with the server's clock.
func New(src page.Source, seed time.Time) *Assembler {
	a := &Assembler{src: src}
	a.reset(seed)
	return a
}

// SetEvents attaches a structured event log.
func (a *Assembler) SetEvents(l *otel.Logger) { a.events = l }

func (a *Assembler) reset(seed time.Time) {
	a.gen++
	a.head = nil
	a.tail = nil
	a.headCursor = cursor.Seed(cursor.Prev, seed)
	a.tailCursor = cursor.Seed(cursor.Next, seed)
	a.seen = make(map[cursor.Key]struct{})
}

// Reset discards every page and reseeds the session at seed. Loads already
// in flight finish but their results are dropped.
func (a *Assembler) Reset(seed time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset(seed)
}

// LoadOlder appends the next history page to the tail. Once history is
// exhausted it returns immediately with Exhausted set. Overlapping calls
// share a single fetch and receive the same Result.
func (a *Assembler) LoadOlder(ctx context.Context) (Result, error) {
	return a.load(ctx, cursor.Next)
}

// LoadNewer fetches rows that arrived since the head cursor and prepends
// them as a new head page. An empty fetch only advances the cursor.
// Overlapping calls share a single fetch.
func (a *Assembler) LoadNewer(ctx context.Context) (Result, error) {
	return a.load(ctx, cursor.Prev)
}

func (a *Assembler) load(ctx context.Context, dir cursor.Direction) (Result, error) {
	a.mu.Lock()
	key := fmt.Sprintf("%s/%d", dir, a.gen)
	a.mu.Unlock()

	// The shared fetch outlives any single caller: one caller giving up
	// must not fail the others waiting on it. It stays bounded by the
	// source's own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.fetch(fetchCtx, dir)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{Direction: dir}, ctx.Err()
	}
}

func (a *Assembler) fetch(ctx context.Context, dir cursor.Direction) (Result, error) {
	a.mu.Lock()
	gen := a.gen
	from := a.tailCursor
	if dir == cursor.Prev {
		from = a.headCursor
	}
	a.mu.Unlock()

	if dir == cursor.Next && from.IsNull() {
		return Result{Direction: dir, Exhausted: true, Cursor: from}, nil
	}

	p, err := a.src.FetchPage(ctx, from)
	if err != nil {
		return Result{}, err
	}

	next := p.Next
	if dir == cursor.Prev {
		next = p.Prev
	}
	if err := next.Expect(dir); err != nil {
		return Result{}, fmt.Errorf("source returned bad cursor: %w", err)
	}
	if dir == cursor.Prev && next.IsNull() {
		return Result{}, fmt.Errorf("%w: live page without cursor", cursor.ErrInvalidCursor)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if gen != a.gen {
		return Result{Direction: dir, Fetched: len(p.Rows), Stale: true}, nil
	}

	fresh := a.dedup(p.Rows)
	if len(fresh) > 0 {
		merged := page.Page{Rows: fresh, Next: p.Next, Prev: p.Prev}
		if dir == cursor.Next {
			a.tail = append(a.tail, merged)
		} else {
			a.head = append(a.head, merged)
		}
	}
	if dir == cursor.Next {
		a.tailCursor = next
	} else {
		a.headCursor = next
	}

	a.events.Emit(otel.Event{
		Level:     otel.LevelDebug,
		Kind:      otel.KindPageMerge,
		Comp:      "assembler",
		Direction: string(dir),
		Cursor:    next.String(),
		Count:     len(fresh),
	})

	return Result{
		Direction: dir,
		Fetched:   len(p.Rows),
		Added:     len(fresh),
		Exhausted: dir == cursor.Next && next.IsNull(),
		Cursor:    next,
	}, nil
}

// dedup drops rows already merged and records the rest. Caller holds a.mu.
func (a *Assembler) dedup(rows []store.Row) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		k := r.Key()
		if _, ok := a.seen[k]; ok {
			continue
		}
		a.seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Flatten returns every merged row, newest first.
func (a *Assembler) Flatten() []store.Row {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]store.Row, 0, len(a.seen))
	for i := len(a.head) - 1; i >= 0; i-- {
		out = append(out, a.head[i].Rows...)
	}
	for _, p := range a.tail {
		out = append(out, p.Rows...)
	}
	return out
}

// Len returns the number of merged rows.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Pages returns the number of live and history pages held.
func (a *Assembler) Pages() (head, tail int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.head), len(a.tail)
}

// Cursors returns the stored live and history cursors.
func (a *Assembler) Cursors() (head, tail cursor.Cursor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.headCursor, a.tailCursor
}

// Exhausted reports whether history has been read to the end.
func (a *Assembler) Exhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tailCursor.IsNull()
}
