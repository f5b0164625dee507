package page

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func appendRows(t *testing.T, s *store.Store, rows ...store.Row) {
	t.Helper()
	if _, err := s.Append(context.Background(), rows); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func row(ts int64, id string) store.Row {
	return store.Row{ID: id, Timestamp: ts, Monitor: "api", Status: "up"}
}

func timestamps(rows []store.Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Timestamp
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHistoryPagesHaveNoGap(t *testing.T) {
	s := openStore(t)
	for ts := int64(100); ts >= 10; ts -= 10 {
		appendRows(t, s, row(ts, fmt.Sprintf("r%03d", ts)))
	}

	f := NewFetcher(s, 3, testclock.NewClock(time.UnixMilli(1000)))
	want := [][]int64{{100, 90, 80}, {70, 60, 50}, {40, 30, 20}, {10}}

	c := cursor.Start()
	for i, w := range want {
		p, err := f.FetchPage(context.Background(), c)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if got := timestamps(p.Rows); !equalInts(got, w) {
			t.Fatalf("page %d = %v, want %v", i, got, w)
		}
		if !p.Prev.IsNull() {
			t.Errorf("page %d: history page carries a prev cursor", i)
		}
		c = p.Next
	}
	if !c.IsNull() {
		t.Errorf("final cursor = %s, want null", c)
	}
}

func TestHistoryCursorIsLastRow(t *testing.T) {
	s := openStore(t)
	appendRows(t, s, row(50, "a"), row(40, "b"), row(30, "c"))

	f := NewFetcher(s, 2, nil)
	p, err := f.FetchPage(context.Background(), cursor.Start())
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	want := cursor.Key{Timestamp: 40, ID: "b"}
	if p.Next.IsNull() || p.Next.Key() != want {
		t.Errorf("next = %s, want %s", p.Next, want)
	}
}

func TestHistoryEmpty(t *testing.T) {
	f := NewFetcher(openStore(t), 5, nil)
	p, err := f.FetchPage(context.Background(), cursor.Start())
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if !p.Empty() || !p.Next.IsNull() {
		t.Errorf("empty page = %+v", p)
	}
}

func TestSameTimestampAcrossPageBoundary(t *testing.T) {
	s := openStore(t)
	appendRows(t, s, row(110, "z"), row(100, "a"), row(100, "b"), row(90, "c"))

	f := NewFetcher(s, 2, nil)
	first, err := f.FetchPage(context.Background(), cursor.Start())
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	second, err := f.FetchPage(context.Background(), first.Next)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}

	var ids []string
	for _, r := range append(first.Rows, second.Rows...) {
		ids = append(ids, r.ID)
	}
	want := []string{"z", "b", "a", "c"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestLiveCatchUp(t *testing.T) {
	const t0 = int64(10_000)
	s := openStore(t)
	appendRows(t, s, row(t0, "seen"), row(t0+1, "x"), row(t0+3, "y"))

	clk := testclock.NewClock(time.UnixMilli(t0))
	clk.Advance(5 * time.Millisecond)
	f := NewFetcher(s, DefaultSize, clk)

	p, err := f.FetchPage(context.Background(), cursor.At(cursor.Prev, cursor.Key{Timestamp: t0, ID: "seen"}))
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if got := timestamps(p.Rows); !equalInts(got, []int64{t0 + 3, t0 + 1}) {
		t.Errorf("rows = %v", got)
	}
	if v := p.Prev.Value(); v == nil || *v != t0+5 {
		t.Errorf("prev cursor = %s, want boundary %d", p.Prev, t0+5)
	}
	if !p.Next.IsNull() {
		t.Error("live page carries a next cursor")
	}
}

func TestLiveExcludesRowsAfterBoundary(t *testing.T) {
	s := openStore(t)
	appendRows(t, s, row(105, "early"), row(120, "future"))

	f := NewFetcher(s, DefaultSize, testclock.NewClock(time.UnixMilli(110)))
	p, err := f.FetchPage(context.Background(), cursor.At(cursor.Prev, cursor.Key{Timestamp: 100}))
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(p.Rows) != 1 || p.Rows[0].ID != "early" {
		t.Errorf("rows = %+v", p.Rows)
	}
}

func TestLiveBoundaryRowNotRepeated(t *testing.T) {
	s := openStore(t)
	clk := testclock.NewClock(time.UnixMilli(200))
	f := NewFetcher(s, DefaultSize, clk)
	appendRows(t, s, row(200, "m"))

	first, err := f.FetchPage(context.Background(), cursor.At(cursor.Prev, cursor.Key{Timestamp: 150}))
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if len(first.Rows) != 1 || first.Prev.Key() != (cursor.Key{Timestamp: 200, ID: "m"}) {
		t.Fatalf("first poll = %+v, prev %s", first.Rows, first.Prev)
	}

	// A late writer lands on the boundary millisecond with a larger id.
	appendRows(t, s, row(200, "n"))
	clk.Advance(10 * time.Millisecond)

	second, err := f.FetchPage(context.Background(), first.Prev)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second.Rows) != 1 || second.Rows[0].ID != "n" {
		t.Errorf("second poll rows = %+v", second.Rows)
	}
}

func TestLiveIdleAdvancesCursor(t *testing.T) {
	clk := testclock.NewClock(time.UnixMilli(500))
	f := NewFetcher(openStore(t), DefaultSize, clk)

	p, err := f.FetchPage(context.Background(), cursor.At(cursor.Prev, cursor.Key{Timestamp: 400}))
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !p.Empty() {
		t.Errorf("rows = %+v", p.Rows)
	}
	if v := p.Prev.Value(); v == nil || *v != 500 {
		t.Errorf("prev = %s, want 500", p.Prev)
	}
}

func TestLiveCursorNeverMovesBack(t *testing.T) {
	f := NewFetcher(openStore(t), DefaultSize, testclock.NewClock(time.UnixMilli(100)))
	from := cursor.At(cursor.Prev, cursor.Key{Timestamp: 300, ID: "q"})

	p, err := f.FetchPage(context.Background(), from)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if p.Prev.Key() != from.Key() {
		t.Errorf("prev = %s, want %s", p.Prev, from)
	}
}

func TestInvalidCursor(t *testing.T) {
	f := NewFetcher(&fakeQuerier{}, 3, nil)
	for _, c := range []cursor.Cursor{{}, cursor.End(cursor.Prev), cursor.At(cursor.Next, cursor.Key{Timestamp: -1})} {
		_, err := f.FetchPage(context.Background(), c)
		if !errors.Is(err, cursor.ErrInvalidCursor) {
			t.Errorf("FetchPage(%s) err = %v, want ErrInvalidCursor", c, err)
		}
		if IsRetryable(err) {
			t.Errorf("invalid cursor %s reported retryable", c)
		}
	}
}

type fakeQuerier struct {
	rows  []store.Row
	err   error
	block bool
	calls int
}

func (q *fakeQuerier) Query(ctx context.Context, r store.Range) ([]store.Row, error) {
	q.calls++
	if q.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return q.rows, q.err
}

func TestQueryFailure(t *testing.T) {
	backend := errors.New("connection refused")
	f := NewFetcher(&fakeQuerier{err: backend}, 3, nil)

	p, err := f.FetchPage(context.Background(), cursor.Start())
	if !errors.Is(err, ErrQueryFailed) || !errors.Is(err, backend) {
		t.Fatalf("err = %v, want ErrQueryFailed wrapping backend error", err)
	}
	if !IsRetryable(err) {
		t.Error("query failure should be retryable")
	}
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Direction != cursor.Next {
		t.Errorf("err = %#v", err)
	}
	if p.Rows != nil {
		t.Error("failed fetch returned rows")
	}
}

func TestQueryTimeout(t *testing.T) {
	f := NewFetcher(&fakeQuerier{block: true}, 3, nil)
	f.SetTimeout(10 * time.Millisecond)

	_, err := f.FetchPage(context.Background(), cursor.Start())
	if !errors.Is(err, ErrQueryFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want timeout reported as ErrQueryFailed", err)
	}
}

func TestOversizedResultRejected(t *testing.T) {
	q := &fakeQuerier{rows: []store.Row{row(3, "c"), row(2, "b"), row(1, "a")}}
	f := NewFetcher(q, 2, nil)
	if _, err := f.FetchPage(context.Background(), cursor.Start()); !errors.Is(err, ErrQueryFailed) {
		t.Errorf("err = %v, want ErrQueryFailed", err)
	}
}

func TestDefaultSize(t *testing.T) {
	if f := NewFetcher(&fakeQuerier{}, 0, nil); f.Size() != DefaultSize {
		t.Errorf("Size = %d, want %d", f.Size(), DefaultSize)
	}
}
