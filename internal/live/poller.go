// Package live drives the forward ("prev") fetch path of a session on a
// fixed schedule.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
)

// DefaultInterval is the pause between the end of one poll and the start of
// the next.
const DefaultInterval = 5 * time.Second

// Loader is the forward-fetch path a Poller drives. *assembler.Assembler
// satisfies it.
type Loader interface {
	LoadNewer(ctx context.Context) (assembler.Result, error)
}

// State is the poller state.
type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Poller repeatedly calls LoadNewer while in the Polling state. A poll never
// starts before the previous one has returned; the interval is measured from
// its completion.
type Poller struct {
	loader   Loader
	interval time.Duration
	clock    clock.Clock
	events   *otel.Logger

	// OnResult and OnError, when set before Start, are called from the
	// polling goroutine after each poll. Only page.ErrQueryFailed keeps the
	// schedule running; for any other error the poller is already Idle when
	// OnError runs.
	OnResult func(assembler.Result)
	OnError  func(error)

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}
}

// New creates an idle poller. A non-positive interval selects
// DefaultInterval; a nil clock selects the wall clock.
func New(l Loader, interval time.Duration, clk clock.Clock) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Poller{loader: l, interval: interval, clock: clk}
}

// SetEvents attaches a structured event log.
func (p *Poller) SetEvents(l *otel.Logger) { p.events = l }

// Interval returns the pause between polls.
func (p *Poller) Interval() time.Duration { return p.interval }

// State returns the current state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start moves Idle to Polling and polls immediately. It reports false when
// already polling. Cancelling ctx stops the schedule like Stop does; a poll
// in flight at that moment still completes.
func (p *Poller) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Polling {
		return false
	}
	prev := p.done
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.state = Polling
	go p.run(ctx, prev, p.stop, p.done)

	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveStart, Comp: "live", Dur: p.interval})
	logging.Info("live mode on", "interval", p.interval)
	return true
}

// Stop moves Polling to Idle. The pending timer is cancelled; a poll in
// flight is left to complete and apply its result. Reports false when idle.
func (p *Poller) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Polling {
		return false
	}
	close(p.stop)
	p.state = Idle

	p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveStop, Comp: "live"})
	logging.Info("live mode off")
	return true
}

// Toggle stops a polling poller and starts an idle one. It returns the new state.
func (p *Poller) Toggle(ctx context.Context) State {
	if p.Stop() {
		return Idle
	}
	p.Start(ctx)
	return Polling
}

// Wait blocks until the most recently started polling goroutine has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) run(ctx context.Context, prev <-chan struct{}, stop, done chan struct{}) {
	defer close(done)
	defer p.exited(stop)

	// A restarted poller must not overlap a poll left running by the
	// previous loop.
	if prev != nil {
		select {
		case <-prev:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}

	fetchCtx := context.WithoutCancel(ctx)
	for {
		if !p.poll(fetchCtx, stop) {
			return
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		timer := p.clock.NewTimer(p.interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}
	}
}

// exited returns the poller to Idle when its loop ended on context
// cancellation rather than Stop.
func (p *Poller) exited(stop chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == stop && p.state == Polling {
		p.state = Idle
		p.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindLiveStop, Comp: "live", Msg: "context done"})
	}
}

// halt returns the poller to Idle after a poll failed in a way no retry
// can fix.
func (p *Poller) halt(stop chan struct{}, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == stop && p.state == Polling {
		p.state = Idle
		p.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindLiveStop, Comp: "live", Msg: "non-retryable error", Err: err.Error()})
	}
}

// poll runs one LoadNewer. It reports false when the loop must end: a
// failure that is not a transient query failure (an invalid cursor, a
// rejected request) would fail the same way every interval.
func (p *Poller) poll(ctx context.Context, stop chan struct{}) bool {
	start := p.clock.Now()
	res, err := p.loader.LoadNewer(ctx)
	dur := p.clock.Now().Sub(start)

	if err != nil {
		retry := page.IsRetryable(err)
		level := otel.LevelWarn
		if !retry {
			level = otel.LevelError
		}
		p.events.Emit(otel.Event{
			Level: level,
			Kind:  otel.KindLiveError,
			Comp:  "live",
			Dur:   dur,
			Err:   err.Error(),
		})
		if retry {
			logging.Warn("live poll failed", "error", err)
		} else {
			logging.Error("live poll failed, leaving live mode", "error", err)
			p.halt(stop, err)
		}
		if p.OnError != nil {
			p.OnError(err)
		}
		return retry
	}

	p.events.Emit(otel.Event{
		Level:  otel.LevelDebug,
		Kind:   otel.KindLivePoll,
		Comp:   "live",
		Cursor: res.Cursor.String(),
		Dur:    dur,
		Count:  res.Added,
	})
	if p.OnResult != nil {
		p.OnResult(res)
	}
	return true
}
