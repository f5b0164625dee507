package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/livelog/internal/assembler"
	"github.com/abelbrown/livelog/internal/logging"
)

func runBrowse() {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	sf := addSourceFlags(fs)
	pages := fs.Int("pages", 1, "Number of history pages to load")
	asJSON := fs.Bool("json", false, "Print rows as JSON lines")
	fs.Parse(os.Args[1:])

	initLogging(sf.cfg)
	defer logging.Close()
	events := openEvents(sf.cfg)
	defer events.Close()

	ctx := context.Background()
	s := mustOpenSession(ctx, sf, events)
	defer s.close()

	a := assembler.New(s.src, s.seed)
	a.SetEvents(events)

	var exhausted bool
	for i := 0; i < *pages && !exhausted; i++ {
		res, err := a.LoadOlder(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		exhausted = res.Exhausted
	}

	rows := a.Flatten()
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		if *asJSON {
			enc.Encode(r)
			continue
		}
		fmt.Println(formatRow(r))
	}

	if !*asJSON {
		_, tail := a.Cursors()
		state := "more available"
		if exhausted {
			state = "end of history"
		}
		fmt.Fprintf(os.Stderr, "\n%d rows, %s (resume at %s)\n", len(rows), state, tail)
	}
}
