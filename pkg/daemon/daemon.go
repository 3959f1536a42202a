// Package daemon implements the panpold watch-and-recompile lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/psaab/panpol/pkg/api"
	"github.com/psaab/panpol/pkg/logging"
	"github.com/psaab/panpol/pkg/naming"
	"github.com/psaab/panpol/pkg/outstore"
	"github.com/psaab/panpol/pkg/paloalto"
	"github.com/psaab/panpol/pkg/policy"
)

// debounceDefault is the default settle time for file events.
const debounceDefault = 500 * time.Millisecond

// Options configures the daemon.
type Options struct {
	PolicyPath string
	DefsDir    string
	OutputPath string
	ListenAddr string // empty = no HTTP API
	APIKey     string // non-empty enables API authentication
	ExpWeeks   int
	Debounce   time.Duration
	EventBuf   *logging.EventBuffer
}

// Daemon watches a policy file and a definitions directory and
// recompiles the firewall document whenever either changes.
type Daemon struct {
	opts  Options
	store *outstore.Store
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.Debounce <= 0 {
		opts.Debounce = debounceDefault
	}
	if opts.EventBuf == nil {
		opts.EventBuf = logging.NewEventBuffer(1000)
	}
	return &Daemon{
		opts:  opts,
		store: outstore.New(opts.OutputPath),
	}
}

// Store returns the compile result store.
func (d *Daemon) Store() *outstore.Store {
	return d.store
}

// Events returns the shared event buffer.
func (d *Daemon) Events() *logging.EventBuffer {
	return d.opts.EventBuf
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting panpold",
		"policy", d.opts.PolicyPath,
		"definitions", d.opts.DefsDir,
		"pid", os.Getpid())

	// Compile whatever is on disk before watching for changes.
	d.compile()

	var wg sync.WaitGroup
	if d.opts.ListenAddr != "" {
		var auth *api.AuthConfig
		if d.opts.APIKey != "" {
			auth = &api.AuthConfig{APIKeys: map[string]bool{d.opts.APIKey: true}}
		}
		srv := api.NewServer(api.Config{
			Addr:     d.opts.ListenAddr,
			Auth:     auth,
			Store:    d.store,
			EventBuf: d.opts.EventBuf,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				slog.Error("API server failed", "err", err)
			}
		}()
	}

	err := d.watch(ctx)

	wg.Wait()
	slog.Info("shutdown complete")
	return err
}

// compile runs one full translation and publishes the result.
func (d *Daemon) compile() {
	start := time.Now()
	res := &outstore.Result{}

	doc, err := d.translate()
	if err != nil {
		res.Err = err.Error()
		res.Duration = time.Since(start)
		slog.Error("compile failed", "err", err)
	} else {
		res.Document = doc.Render()
		res.Stats = doc.Stats
		res.Duration = time.Since(start)
	}

	if err := d.store.Publish(res); err != nil {
		slog.Warn("failed to write output", "path", d.opts.OutputPath, "err", err)
	}

	if res.OK() {
		slog.Info("compile finished",
			"rules", res.Stats.Rules,
			"dropped_terms", res.Stats.DroppedTerms,
			"duration", res.Duration.Truncate(time.Microsecond),
			"hash", res.Hash[:12])
	}
}

// translate loads definitions and the policy and runs the translator.
func (d *Daemon) translate() (*paloalto.Document, error) {
	defs, err := naming.Load(d.opts.DefsDir)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	pol, err := policy.ParseFile(d.opts.PolicyPath, defs)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	tr := paloalto.NewTranslator(paloalto.Options{
		ExpirationWeeks: d.opts.ExpWeeks,
	})
	return tr.Translate(pol)
}
