package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/live"
	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/ui"
)

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	sf := addSourceFlags(fs)
	interval := fs.Duration("interval", 0, "Live poll interval (default from config)")
	startLive := fs.Bool("live", false, "Start in live mode")
	fs.Parse(os.Args[1:])

	initLogging(sf.cfg)
	defer logging.Close()

	events := openEvents(sf.cfg)
	defer events.Close()
	ring := otel.NewRingBuffer(otel.DefaultRingSize)
	events.SetRingBuffer(ring)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := mustOpenSession(ctx, sf, events)
	defer s.close()

	a := assembler.New(s.src, s.seed)
	a.SetEvents(events)

	iv := *interval
	if iv <= 0 {
		iv = sf.cfg.PollInterval()
	}
	poller := live.New(a, iv, nil)
	poller.SetEvents(events)

	cmds := ui.Commands{
		LoadOlder: func() tea.Cmd {
			return func() tea.Msg {
				res, err := a.LoadOlder(ctx)
				return ui.RowsLoaded{Rows: a.Flatten(), Result: res, Err: err}
			}
		},
		ToggleLive: func() tea.Cmd {
			return func() tea.Msg {
				return ui.LiveToggled{On: poller.Toggle(ctx) == live.Polling}
			}
		},
		Reset: func() tea.Cmd {
			return func() tea.Msg {
				seed, err := s.now(ctx)
				if err != nil {
					return ui.SessionReset{Err: err}
				}
				wasLive := poller.Stop()
				a.Reset(seed)
				if wasLive {
					poller.Start(ctx)
				}
				return ui.SessionReset{}
			}
		},
	}

	events.Info(otel.KindStartup, "main", "watch started")

	program := tea.NewProgram(ui.NewApp(cmds, ring), tea.WithAltScreen())

	// Live results reach the viewer through the program; idle polls that
	// merged nothing are not worth a redraw.
	poller.OnResult = func(res assembler.Result) {
		if res.Added > 0 {
			program.Send(ui.RowsLoaded{Rows: a.Flatten(), Result: res})
		}
	}
	// Transient failures keep polling and stay off screen; anything else has
	// already stopped the poller and is shown.
	poller.OnError = func(err error) {
		if !page.IsRetryable(err) {
			program.Send(ui.LiveToggled{On: false})
			program.Send(ui.RowsLoaded{Err: err})
		}
	}
	if *startLive {
		poller.Start(ctx)
		go program.Send(ui.LiveToggled{On: true})
	}

	_, runErr := program.Run()

	poller.Stop()
	cancel()
	poller.Wait()
	events.Info(otel.KindShutdown, "main", "watch stopped")

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
