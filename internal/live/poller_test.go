package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

const (
	interval = 5 * time.Second
	waitFor  = 2 * time.Second
)

// mockLoader records polls. When gated, each poll blocks until a value is
// sent on release.
type mockLoader struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	entered  chan int32
	release  chan struct{}
	gated    bool

	mu   sync.Mutex
	errs []error
}

func newMockLoader(gated bool) *mockLoader {
	return &mockLoader{entered: make(chan int32, 64), release: make(chan struct{}), gated: gated}
}

func (m *mockLoader) failNext(err error) {
	m.mu.Lock()
	m.errs = append(m.errs, err)
	m.mu.Unlock()
}

func (m *mockLoader) LoadNewer(ctx context.Context) (assembler.Result, error) {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inFlight.Add(-1)

	n := m.calls.Add(1)
	m.entered <- n
	if m.gated {
		<-m.release
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return assembler.Result{}, err
	}
	return assembler.Result{Direction: cursor.Prev, Added: 1}, nil
}

func expectPoll(t *testing.T, m *mockLoader, want int32) {
	t.Helper()
	select {
	case n := <-m.entered:
		if n != want {
			t.Fatalf("poll #%d, want #%d", n, want)
		}
	case <-time.After(waitFor):
		t.Fatalf("poll #%d never happened", want)
	}
}

func expectNoPoll(t *testing.T, m *mockLoader) {
	t.Helper()
	select {
	case n := <-m.entered:
		t.Fatalf("unexpected poll #%d", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollsImmediatelyThenEveryInterval(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	p := New(m, interval, clk)

	if !p.Start(context.Background()) {
		t.Fatal("Start from idle returned false")
	}
	expectPoll(t, m, 1)

	for want := int32(2); want <= 4; want++ {
		if err := clk.WaitAdvance(interval, waitFor, 1); err != nil {
			t.Fatalf("timer not armed before poll #%d: %v", want, err)
		}
		expectPoll(t, m, want)
	}

	p.Stop()
	p.Wait()
	if p.State() != Idle {
		t.Errorf("state = %s, want idle", p.State())
	}
}

func TestIntervalMeasuredFromCompletion(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(true)
	p := New(m, interval, clk)
	p.Start(context.Background())
	defer func() {
		p.Stop()
		close(m.release)
		p.Wait()
	}()

	expectPoll(t, m, 1)
	// A slow poll: time passes but no timer is armed yet.
	clk.Advance(3 * interval)
	expectNoPoll(t, m)

	m.release <- struct{}{}
	if err := clk.WaitAdvance(interval-time.Millisecond, waitFor, 1); err != nil {
		t.Fatal(err)
	}
	expectNoPoll(t, m)

	clk.Advance(time.Millisecond)
	expectPoll(t, m, 2)
	if m.overlap.Load() {
		t.Error("polls overlapped")
	}
}

func TestFailedPollKeepsPolling(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	m.failNext(&page.QueryError{Direction: cursor.Prev, Err: errors.New("timeout")})

	var errCount, okCount atomic.Int32
	p := New(m, interval, clk)
	p.OnError = func(err error) {
		if page.IsRetryable(err) {
			errCount.Add(1)
		}
	}
	p.OnResult = func(assembler.Result) { okCount.Add(1) }

	p.Start(context.Background())
	expectPoll(t, m, 1)
	if err := clk.WaitAdvance(interval, waitFor, 1); err != nil {
		t.Fatal(err)
	}
	expectPoll(t, m, 2)

	p.Stop()
	p.Wait()

	if errCount.Load() != 1 || okCount.Load() != 1 {
		t.Errorf("errors=%d results=%d, want 1 and 1", errCount.Load(), okCount.Load())
	}
	if p.State() != Idle {
		t.Errorf("state = %s", p.State())
	}
}

func TestInvalidCursorEndsPolling(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	m.failNext(fmt.Errorf("%w: server: bad", cursor.ErrInvalidCursor))

	var stateOnError atomic.Value
	var errCount atomic.Int32
	p := New(m, interval, clk)
	p.OnError = func(err error) {
		if errors.Is(err, cursor.ErrInvalidCursor) {
			errCount.Add(1)
		}
		stateOnError.Store(p.State())
	}

	p.Start(context.Background())
	expectPoll(t, m, 1)
	p.Wait()

	if errCount.Load() != 1 {
		t.Fatalf("OnError saw %d invalid cursor errors, want 1", errCount.Load())
	}
	if got := stateOnError.Load(); got != Idle {
		t.Errorf("state inside OnError = %v, want idle", got)
	}
	if p.State() != Idle {
		t.Errorf("state = %s, want idle", p.State())
	}
	clk.Advance(10 * interval)
	expectNoPoll(t, m)

	// A later Start resumes normally.
	if !p.Start(context.Background()) {
		t.Fatal("Start after a halted schedule returned false")
	}
	expectPoll(t, m, 2)
	p.Stop()
	p.Wait()
}

func TestStopLetsInFlightPollApply(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(true)
	var applied atomic.Int32
	p := New(m, interval, clk)
	p.OnResult = func(assembler.Result) { applied.Add(1) }

	p.Start(context.Background())
	expectPoll(t, m, 1)

	if !p.Stop() {
		t.Fatal("Stop while polling returned false")
	}
	if p.State() != Idle {
		t.Errorf("state after Stop = %s", p.State())
	}
	close(m.release)
	p.Wait()

	if applied.Load() != 1 {
		t.Errorf("in-flight result applied %d times, want 1", applied.Load())
	}
	clk.Advance(10 * interval)
	expectNoPoll(t, m)
}

func TestStopCancelsPendingTimer(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	p := New(m, interval, clk)

	p.Start(context.Background())
	expectPoll(t, m, 1)
	if err := clk.WaitAdvance(0, waitFor, 1); err != nil {
		t.Fatal(err)
	}

	p.Stop()
	p.Wait()
	clk.Advance(interval)
	expectNoPoll(t, m)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	p := New(m, interval, clk)

	if p.Stop() {
		t.Error("Stop on idle poller returned true")
	}
	p.Start(context.Background())
	if p.Start(context.Background()) {
		t.Error("second Start returned true")
	}
	expectPoll(t, m, 1)
	expectNoPoll(t, m)

	p.Stop()
	p.Wait()
}

func TestRestartWaitsForPreviousPoll(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(true)
	p := New(m, interval, clk)

	p.Start(context.Background())
	expectPoll(t, m, 1)
	p.Stop()
	p.Start(context.Background())
	expectNoPoll(t, m)

	m.release <- struct{}{}
	expectPoll(t, m, 2)
	if m.overlap.Load() {
		t.Error("restarted loop overlapped the previous poll")
	}

	p.Stop()
	close(m.release)
	p.Wait()
}

func TestToggle(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	p := New(m, interval, clk)

	if got := p.Toggle(context.Background()); got != Polling {
		t.Errorf("Toggle from idle = %s", got)
	}
	expectPoll(t, m, 1)
	if got := p.Toggle(context.Background()); got != Idle {
		t.Errorf("Toggle from polling = %s", got)
	}
	p.Wait()
}

func TestContextCancelStopsSchedule(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	m := newMockLoader(false)
	p := New(m, interval, clk)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	expectPoll(t, m, 1)
	cancel()
	p.Wait()

	if p.State() != Idle {
		t.Errorf("state = %s, want idle after cancel", p.State())
	}
	if !p.Start(context.Background()) {
		t.Error("poller could not restart after cancel")
	}
	expectPoll(t, m, 2)
	p.Stop()
	p.Wait()
}

func TestDefaults(t *testing.T) {
	p := New(newMockLoader(false), 0, nil)
	if p.Interval() != DefaultInterval {
		t.Errorf("Interval = %v", p.Interval())
	}
	if p.State() != Idle || p.State().String() != "idle" {
		t.Errorf("new poller state = %s", p.State())
	}
}

// memStore is a tiny append-only log for driving a real assembler.
type memStore struct {
	mu   sync.Mutex
	rows []store.Row
}

func (s *memStore) Query(ctx context.Context, r store.Range) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Row
	for i := len(s.rows) - 1; i >= 0; i-- {
		k := s.rows[i].Key()
		if r.From.Less(k) && k.Timestamp <= r.To {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func TestPollerDrivesAssembler(t *testing.T) {
	clk := testclock.NewClock(time.UnixMilli(1_000_000))
	s := &memStore{}
	a := assembler.New(page.NewFetcher(s, 10, clk), clk.Now())

	results := make(chan assembler.Result, 8)
	p := New(a, interval, clk)
	p.OnResult = func(r assembler.Result) { results <- r }
	p.Start(context.Background())

	first := <-results
	if first.Added != 0 {
		t.Errorf("idle poll added %d rows", first.Added)
	}

	s.mu.Lock()
	s.rows = append(s.rows, store.Row{ID: "a", Timestamp: clk.Now().UnixMilli() + 1000})
	s.mu.Unlock()
	if err := clk.WaitAdvance(interval, waitFor, 1); err != nil {
		t.Fatal(err)
	}
	second := <-results
	if second.Added != 1 || a.Len() != 1 {
		t.Errorf("second poll = %+v, Len = %d", second, a.Len())
	}
	wantCursor := clk.Now().UnixMilli()
	if v := second.Cursor.Value(); v == nil || *v != wantCursor {
		t.Errorf("cursor = %s, want %d", second.Cursor, wantCursor)
	}

	p.Stop()
	p.Wait()
}
