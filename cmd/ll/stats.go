package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abelbrown/livelog/internal/logging"
)

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	sf := addSourceFlags(fs)
	fs.Parse(os.Args[1:])

	initLogging(sf.cfg)
	defer logging.Close()
	events := openEvents(sf.cfg)
	defer events.Close()

	ctx := context.Background()
	s := mustOpenSession(ctx, sf, events)
	defer s.close()

	st, err := s.log.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rows:    %d\n", st.Count)
	if st.Count > 0 {
		fmt.Printf("Oldest:  %s\n", formatMs(st.Oldest))
		fmt.Printf("Newest:  %s\n", formatMs(st.Newest))
		fmt.Printf("Span:    %s\n", time.Duration(st.Newest-st.Oldest)*time.Millisecond)
	}
	fmt.Printf("Now:     %s\n", formatMs(st.Now))
}

func formatMs(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05.000")
}
