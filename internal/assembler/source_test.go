package assembler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// memQuerier answers range queries from a slice, with the same semantics as
// the SQL adapter.
type memQuerier struct {
	mu   sync.Mutex
	rows []store.Row
	seq  int
}

func (q *memQuerier) add(ts int64) store.Row {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	r := store.Row{ID: fmt.Sprintf("%06d", q.seq), Timestamp: ts, Monitor: "api", Status: "up"}
	q.rows = append(q.rows, r)
	return r
}

func (q *memQuerier) all() []store.Row {
	q.mu.Lock()
	out := append([]store.Row(nil), q.rows...)
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[j].Key().Less(out[i].Key()) })
	return out
}

func (q *memQuerier) Query(ctx context.Context, r store.Range) ([]store.Row, error) {
	var out []store.Row
	for _, row := range q.all() {
		k := row.Key()
		switch r.Direction {
		case cursor.Next:
			if r.Bounded && !k.Less(r.From) {
				continue
			}
		case cursor.Prev:
			if !r.From.Less(k) || k.Timestamp > r.To {
				continue
			}
		}
		out = append(out, row)
		if r.Direction == cursor.Next && len(out) == r.Limit {
			break
		}
	}
	return out, nil
}

// gatedSource counts fetches and can hold them until released.
type gatedSource struct {
	src      page.Source
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	entered  chan cursor.Direction
	release  chan struct{}
	err      error
}

func newGatedSource(src page.Source) *gatedSource {
	return &gatedSource{
		src:     src,
		entered: make(chan cursor.Direction, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedSource) FetchPage(ctx context.Context, c cursor.Cursor) (page.Page, error) {
	g.calls.Add(1)
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	g.entered <- c.Direction()
	<-g.release
	if g.err != nil {
		return page.Page{}, g.err
	}
	return g.src.FetchPage(ctx, c)
}

// funcSource adapts a function to page.Source.
type funcSource func(ctx context.Context, c cursor.Cursor) (page.Page, error)

func (f funcSource) FetchPage(ctx context.Context, c cursor.Cursor) (page.Page, error) {
	return f(ctx, c)
}
