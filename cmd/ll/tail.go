package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/live"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// follower is a live.Loader that prints each forward page instead of
// keeping it, so a long-running tail holds no rows in memory.
type follower struct {
	src   page.Source
	cur   cursor.Cursor
	print func(store.Row)
}

func (f *follower) LoadNewer(ctx context.Context) (assembler.Result, error) {
	p, err := f.src.FetchPage(ctx, f.cur)
	if err != nil {
		return assembler.Result{Direction: cursor.Prev, Cursor: f.cur}, err
	}
	// Pages arrive newest first; print oldest first like tail -f.
	for i := len(p.Rows) - 1; i >= 0; i-- {
		f.print(p.Rows[i])
	}
	f.cur = p.Prev
	return assembler.Result{
		Direction: cursor.Prev,
		Fetched:   len(p.Rows),
		Added:     len(p.Rows),
		Cursor:    f.cur,
	}, nil
}

func runTail() {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	sf := addSourceFlags(fs)
	interval := fs.Duration("interval", 0, "Poll interval (default from config)")
	history := fs.Int("n", 10, "History rows to print before following")
	asJSON := fs.Bool("json", false, "Print rows as JSON lines")
	fs.Parse(os.Args[1:])

	initLogging(sf.cfg)
	defer logging.Close()
	events := openEvents(sf.cfg)
	defer events.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := mustOpenSession(ctx, sf, events)
	defer s.close()

	enc := json.NewEncoder(os.Stdout)
	emit := func(r store.Row) {
		if *asJSON {
			enc.Encode(r)
			return
		}
		fmt.Println(formatRow(r))
	}

	if *history > 0 {
		rows, err := readHistory(ctx, s.src, s.seed, *history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		for i := len(rows) - 1; i >= 0; i-- {
			emit(rows[i])
		}
	}

	iv := *interval
	if iv <= 0 {
		iv = sf.cfg.PollInterval()
	}
	f := &follower{src: s.src, cur: cursor.Seed(cursor.Prev, s.seed), print: emit}
	p := live.New(f, iv, nil)
	p.SetEvents(events)
	var fatal error
	p.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "poll failed: %v\n", err)
		if !page.IsRetryable(err) {
			fatal = err
			cancel()
		}
	}
	p.Start(ctx)
	<-ctx.Done()
	p.Wait()
	if fatal != nil {
		os.Exit(1)
	}
}

// readHistory returns up to n rows older than seed, newest first.
func readHistory(ctx context.Context, src page.Source, seed time.Time, n int) ([]store.Row, error) {
	var rows []store.Row
	c := cursor.Seed(cursor.Next, seed)
	for len(rows) < n && !c.IsNull() {
		p, err := src.FetchPage(ctx, c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, p.Rows...)
		c = p.Next
	}
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows, nil
}
