// Command ll reads a livelog event log, locally or from a livelogd server.
//
// Usage:
//
//	ll watch            # interactive viewer (m: more, l: live, r: reset, q: quit)
//	ll tail             # print new rows as they arrive
//	ll browse           # print history pages, newest first
//	ll ingest           # append JSON rows read from stdin
//	ll stats            # row count and time bounds
//	ll events           # query the JSONL event log
package main

import (
	"fmt"
	"os"
)

const usage = `Usage: ll <command> [flags]

Commands:
  watch    Interactive viewer with history and live mode
  tail     Print rows as they arrive (live mode without the viewer)
  browse   Print history pages, newest first
  ingest   Append JSON rows (one per line) read from stdin
  stats    Show row count and time bounds
  events   Query the event log

Source flags (all commands except events):
  -server URL   Read from a livelogd server instead of the local database
  -db PATH      Local SQLite database path

Run 'll <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	// Shift args so subcommands see their flags at os.Args[1:]
	os.Args = os.Args[1:]

	switch cmd {
	case "watch":
		runWatch()
	case "tail":
		runTail()
	case "browse":
		runBrowse()
	case "ingest":
		runIngest()
	case "stats":
		runStats()
	case "events":
		runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", cmd, usage)
		os.Exit(1)
	}
}
