package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/livelog/internal/logging"
	"github.com/abelbrown/livelog/internal/otel"
	"github.com/abelbrown/livelog/internal/store"
)

// ingestBatch is the number of rows sent per Append call.
const ingestBatch = 500

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	sf := addSourceFlags(fs)
	batch := fs.Int("batch", ingestBatch, "Rows per append")
	fs.Parse(os.Args[1:])

	initLogging(sf.cfg)
	defer logging.Close()
	events := openEvents(sf.cfg)
	defer events.Close()

	ctx := context.Background()
	s := mustOpenSession(ctx, sf, events)
	defer s.close()

	if *batch <= 0 {
		*batch = ingestBatch
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		pending  []store.Row
		read     int
		inserted int
		lineNo   int
	)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		n, err := s.log.Append(ctx, pending)
		if err != nil {
			events.Error(otel.KindStoreError, "ingest", err)
			fmt.Fprintf(os.Stderr, "error: append: %v\n", err)
			os.Exit(1)
		}
		inserted += n
		pending = pending[:0]
	}

	for scanner.Scan() {
		lineNo++
		line := trimLine(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var r store.Row
		if err := json.Unmarshal(line, &r); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}
		pending = append(pending, r)
		read++
		if len(pending) >= *batch {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: read stdin: %v\n", err)
		os.Exit(1)
	}
	flush()

	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStoreAppend, Comp: "ingest", Count: inserted})
	fmt.Printf("Ingested %d of %d rows (%d duplicates skipped)\n", inserted, read, read-inserted)
}
