// Command livelogd serves the livelog event store over HTTP.
//
// Usage:
//
//	livelogd [-addr host:port] [-driver sqlite|postgres] [-db path] [-dsn dsn]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/livelog/internal/api"
	"github.com/abelbrown/livelog/internal/config"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "livelogd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fs := flag.NewFlagSet("livelogd", flag.ExitOnError)
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "Listen address")
	fs.StringVar(&cfg.Store.Driver, "driver", cfg.Store.Driver, "Store driver: sqlite or postgres")
	fs.StringVar(&cfg.Store.Path, "db", cfg.Store.Path, "SQLite database path")
	fs.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "Postgres DSN")
	fs.IntVar(&cfg.Paging.PageSize, "page-size", cfg.Paging.PageSize, "Rows per history page")
	fs.Parse(os.Args[1:])

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init("livelogd"); err != nil {
		logging.InitWriter(os.Stderr, logging.ParseLevel(cfg.Log.Level))
		logging.Warn("file logging unavailable", "error", err)
	}
	defer logging.Close()

	events, err := otel.OpenFile(cfg.Log.EventsPath)
	if err != nil {
		logging.Warn("event log unavailable", "error", err)
		events = otel.NewNullLogger()
	}
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)

	st, err := store.OpenDriver(cfg.Store.Driver, cfg.StoreTarget())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	fetcher := page.NewFetcher(st, cfg.Paging.PageSize, nil)
	fetcher.SetTimeout(cfg.QueryTimeout())
	fetcher.SetEvents(events)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(fetcher, st, events, ring).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events.Emit(otel.Event{
		Level: otel.LevelInfo,
		Kind:  otel.KindStartup,
		Comp:  "main",
		Msg:   "listening on " + cfg.Server.Addr,
		Extra: map[string]any{"driver": st.Dialect().Name, "page_size": fetcher.Size()},
	})
	logging.Info("serving", "addr", cfg.Server.Addr, "driver", st.Dialect().Name, "page_size", fetcher.Size())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	events.Info(otel.KindShutdown, "main", "stopped")
	if err != nil {
		events.Error(otel.KindError, "main", err)
		return err
	}
	return nil
}
