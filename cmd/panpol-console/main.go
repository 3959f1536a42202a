// panpol-console is an interactive console for exploring panpol
// definitions and compiling policies ad hoc.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/panpol/pkg/console"
	"github.com/psaab/panpol/pkg/naming"
)

func main() {
	defsDir := flag.String("definitions", "", "definitions directory (required)")
	expWeeks := flag.Int("exp-weeks", 2, "warn about terms expiring within this many weeks")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *defsDir == "" {
		fmt.Fprintln(os.Stderr, "panpol-console: -definitions is required")
		flag.Usage()
		os.Exit(2)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	defs, err := naming.Load(*defsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "panpol-console: %v\n", err)
		os.Exit(1)
	}

	c := console.New(defs, *expWeeks)
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "panpol-console: %v\n", err)
		os.Exit(1)
	}
}
