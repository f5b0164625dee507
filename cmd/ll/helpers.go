package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/juju/clock"

	"github.com/abelbrown/livelog/internal/config"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/remote"
	"github.com/abelbrown/livelog/internal/store"
)

// sourceFlags are the flags shared by every command that reads rows.
type sourceFlags struct {
	cfg    *config.Config
	server string
	db     string
}

// addSourceFlags loads the config and registers -server and -db on fs.
func addSourceFlags(fs *flag.FlagSet) *sourceFlags {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sf := &sourceFlags{cfg: cfg}
	fs.StringVar(&sf.server, "server", cfg.Client.ServerURL, "livelogd base URL (empty reads the local database)")
	fs.StringVar(&sf.db, "db", "", "Local SQLite database path (default from config)")
	return sf
}

// rowLog is what ingest and stats need from either backend.
type rowLog interface {
	Append(ctx context.Context, rows []store.Row) (int, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// session is an opened page source plus the instant its pages are seeded at.
type session struct {
	src    page.Source
	log    rowLog
	seed   time.Time
	events *otel.Logger
	close  func()

	// now returns the instant a reset session is reseeded at.
	now func(ctx context.Context) (time.Time, error)
}

// openSession connects to the configured server or opens the local store.
// Remote sessions are seeded from the server's clock so the first history
// and live boundaries agree with the server.
func openSession(ctx context.Context, sf *sourceFlags, events *otel.Logger) (*session, error) {
	cfg := sf.cfg
	if sf.db != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = sf.db
	}

	if sf.server != "" {
		c := remote.NewClient(sf.server, cfg.Client.RequestsPerSecond, cfg.Client.Burst)
		st, err := c.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("contact %s: %w", sf.server, err)
		}
		return &session{
			src:    c,
			log:    c,
			seed:   time.UnixMilli(st.Now),
			events: events,
			close:  func() {},
			now: func(ctx context.Context) (time.Time, error) {
				st, err := c.Stats(ctx)
				if err != nil {
					return time.Time{}, err
				}
				return time.UnixMilli(st.Now), nil
			},
		}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := store.OpenDriver(cfg.Store.Driver, cfg.StoreTarget())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	f := page.NewFetcher(st, cfg.Paging.PageSize, nil)
	f.SetTimeout(cfg.QueryTimeout())
	f.SetEvents(events)
	return &session{
		src:    f,
		log:    st,
		seed:   clock.WallClock.Now(),
		events: events,
		close:  func() { st.Close() },
		now: func(context.Context) (time.Time, error) {
			return clock.WallClock.Now(), nil
		},
	}, nil
}

// mustOpenSession opens a session or fatals.
func mustOpenSession(ctx context.Context, sf *sourceFlags, events *otel.Logger) *session {
	s, err := openSession(ctx, sf, events)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return s
}

// openEvents opens the JSONL event log, falling back to a null logger.
func openEvents(cfg *config.Config) *otel.Logger {
	l, err := otel.OpenFile(cfg.Log.EventsPath)
	if err != nil {
		logging.Warn("event log unavailable", "error", err)
		return otel.NewNullLogger()
	}
	return l
}

// initLogging sends diagnostics to the log file; commands that print to
// stdout must not interleave log lines with their output.
func initLogging(cfg *config.Config) {
	if err := logging.Init("ll"); err != nil {
		logging.InitWriter(os.Stderr, logging.ParseLevel(cfg.Log.Level))
	}
}

// formatRow renders one row as a single text line.
func formatRow(r store.Row) string {
	var b strings.Builder
	b.WriteString(r.Time().Local().Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(&b, "  %-7s", strings.ToUpper(orDash(r.Status)))
	fmt.Fprintf(&b, " %-20s", truncate(orDash(r.Monitor), 20))
	if r.Region != "" {
		fmt.Fprintf(&b, " %-10s", truncate(r.Region, 10))
	}
	if r.StatusCode != 0 {
		fmt.Fprintf(&b, " %3d", r.StatusCode)
	}
	if r.LatencyMs != 0 {
		fmt.Fprintf(&b, " %5dms", r.LatencyMs)
	}
	if r.Message != "" {
		b.WriteString("  ")
		b.WriteString(truncate(r.Message, 120))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
