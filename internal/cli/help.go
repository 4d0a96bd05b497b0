package cli

import (
	"fmt"
	"io"
)

func PrintHelp(w io.Writer) {
	fmt.Fprint(w, `Dosewise - medication reminders and adherence tracking

Usage:
  dosewise [flags]                 Start the API server and reminder sweep
  dosewise <command> [args]

Commands:
  today                            Show today's doses and progress
  next                             Show the dose to take next
  take <HH:MM> [notes...]          Mark every medication at HH:MM as taken
  stats [--month YYYY-MM]          Monthly and weekly adherence
  streak                           Consecutive days with every dose taken
  export [--format csv|json|yaml] [--from YYYY-MM-DD] [--to YYYY-MM-DD]
                                   Write dose history to stdout
  status                           Show configuration and storage
  version                          Print the version
  help                             Show this help

Flags:
  -config <path>                   Config file (default <data>/dosewise.yaml)
  -data <dir>                      Data directory
  -user <id>                       User for CLI commands (default "default")
  -server                          Start the server and ignore any command
`)
}
