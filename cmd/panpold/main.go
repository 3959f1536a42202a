// panpold is the panpol watch daemon.
//
// It watches a policy file and a definitions directory, recompiles the
// PAN-OS document on change, and serves compile status over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psaab/panpol/pkg/daemon"
	"github.com/psaab/panpol/pkg/logging"
)

func main() {
	policyPath := flag.String("policy", "", "policy file to watch (required)")
	defsDir := flag.String("definitions", "", "definitions directory to watch (required)")
	outputPath := flag.String("output", "", "write the compiled document here (empty = in-memory only)")
	apiAddr := flag.String("api-addr", "127.0.0.1:8080", "HTTP API listen address (empty to disable)")
	apiKey := flag.String("api-key", "", "API key for HTTP authentication (empty = no auth)")
	expWeeks := flag.Int("exp-weeks", 2, "warn about terms expiring within this many weeks")
	debounce := flag.Duration("debounce", 500*time.Millisecond, "settle time after a file event before recompiling")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *policyPath == "" || *defsDir == "" {
		fmt.Fprintln(os.Stderr, "panpold: -policy and -definitions are required")
		flag.Usage()
		os.Exit(2)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}

	// Tee warnings and errors into the event buffer served by the API.
	events := logging.NewEventBuffer(1000)
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(logging.NewBufferHandler(text, events, slog.LevelInfo)))

	d := daemon.New(daemon.Options{
		PolicyPath: *policyPath,
		DefsDir:    *defsDir,
		OutputPath: *outputPath,
		ListenAddr: *apiAddr,
		APIKey:     *apiKey,
		ExpWeeks:   *expWeeks,
		Debounce:   *debounce,
		EventBuf:   events,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "panpold: %v\n", err)
		os.Exit(1)
	}
}
