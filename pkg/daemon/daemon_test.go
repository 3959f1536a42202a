package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

const testDefs = `
networks:
  WEBSERVERS:
    values:
      - 10.1.0.0/24
services:
  HTTP:
    - port: 80
      protocol: tcp
`

const testPolicy = `
header {
  comment:: "edge policy"
  target:: paloalto from-zone trust to-zone untrust
}
term allow-web {
  destination-address:: WEBSERVERS
  destination-port:: HTTP
  protocol:: tcp
  action:: accept
}
`

const testPolicyUpdated = `
header {
  target:: paloalto from-zone trust to-zone untrust
}
term allow-web {
  destination-address:: WEBSERVERS
  destination-port:: HTTP
  protocol:: tcp
  action:: accept
}
term deny-rest {
  action:: deny
}
`

// writeTestTree lays out a policy file and definitions dir in a temp
// directory and returns daemon options pointing at them.
func writeTestTree(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()

	defsDir := filepath.Join(dir, "def")
	if err := os.Mkdir(defsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(defsDir, "defs.yaml"), []byte(testDefs), 0644); err != nil {
		t.Fatal(err)
	}

	policyPath := filepath.Join(dir, "edge.pol")
	if err := os.WriteFile(policyPath, []byte(testPolicy), 0644); err != nil {
		t.Fatal(err)
	}

	return Options{
		PolicyPath: policyPath,
		DefsDir:    defsDir,
		OutputPath: filepath.Join(dir, "pan.xml"),
		Debounce:   50 * time.Millisecond,
	}
}

func TestDaemonCompile(t *testing.T) {
	opts := writeTestTree(t)
	d := New(opts)

	d.compile()

	res := d.Store().Latest()
	if res == nil {
		t.Fatal("no result published")
	}
	if !res.OK() {
		t.Fatalf("compile failed: %s", res.Err)
	}
	if res.Stats.Rules != 1 {
		t.Errorf("Stats.Rules = %d, want 1", res.Stats.Rules)
	}
	if !strings.Contains(res.Document, `<entry name="allow-web">`) {
		t.Error("document missing the allow-web rule")
	}

	data, err := os.ReadFile(opts.OutputPath)
	if err != nil {
		t.Fatalf("output file: %v", err)
	}
	if string(data) != res.Document {
		t.Error("output file does not match published document")
	}
}

func TestDaemonCompileBadPolicy(t *testing.T) {
	opts := writeTestTree(t)
	if err := os.WriteFile(opts.PolicyPath, []byte("term oops {\n  action:: accept\n"), 0644); err != nil {
		t.Fatal(err)
	}
	d := New(opts)

	d.compile()

	res := d.Store().Latest()
	if res == nil {
		t.Fatal("no result published")
	}
	if res.OK() {
		t.Fatal("expected a failed result")
	}
	if !strings.Contains(res.Err, "parse policy") {
		t.Errorf("Err = %q, want parse failure", res.Err)
	}
	if _, err := os.Stat(opts.OutputPath); !os.IsNotExist(err) {
		t.Error("failed compile should not write the output file")
	}
}

func TestDaemonCompileMissingDefs(t *testing.T) {
	opts := writeTestTree(t)
	opts.DefsDir = filepath.Join(opts.DefsDir, "missing")
	d := New(opts)

	d.compile()

	res := d.Store().Latest()
	if res == nil || res.OK() {
		t.Fatalf("result = %+v, want definitions load failure", res)
	}
	if !strings.Contains(res.Err, "load definitions") {
		t.Errorf("Err = %q, want definitions failure", res.Err)
	}
}

func TestRelevantEvents(t *testing.T) {
	opts := writeTestTree(t)
	d := New(opts)

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{
			name:  "policy write",
			event: fsnotify.Event{Name: opts.PolicyPath, Op: fsnotify.Write},
			want:  true,
		},
		{
			name:  "policy rename",
			event: fsnotify.Event{Name: opts.PolicyPath, Op: fsnotify.Rename},
			want:  true,
		},
		{
			name:  "policy chmod only",
			event: fsnotify.Event{Name: opts.PolicyPath, Op: fsnotify.Chmod},
			want:  false,
		},
		{
			name:  "unrelated file in policy dir",
			event: fsnotify.Event{Name: filepath.Join(filepath.Dir(opts.PolicyPath), "notes.txt"), Op: fsnotify.Write},
			want:  false,
		},
		{
			name:  "defs yaml write",
			event: fsnotify.Event{Name: filepath.Join(opts.DefsDir, "defs.yaml"), Op: fsnotify.Write},
			want:  true,
		},
		{
			name:  "defs yml create",
			event: fsnotify.Event{Name: filepath.Join(opts.DefsDir, "more.yml"), Op: fsnotify.Create},
			want:  true,
		},
		{
			name:  "editor temp file in defs dir",
			event: fsnotify.Event{Name: filepath.Join(opts.DefsDir, ".defs.yaml.swp"), Op: fsnotify.Create},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.relevant(tt.event); got != tt.want {
				t.Errorf("relevant(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestDaemonWatchRecompiles(t *testing.T) {
	opts := writeTestTree(t)
	d := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	// Wait for the initial compile and for the watcher to arm.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if compiles, _ := d.Store().Counts(); compiles >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial compile did not happen")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(opts.PolicyPath, []byte(testPolicyUpdated), 0644); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for {
		if compiles, _ := d.Store().Counts(); compiles >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("change did not trigger a recompile")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res := d.Store().Latest()
	if !res.OK() {
		t.Fatalf("recompile failed: %s", res.Err)
	}
	if res.Stats.Rules != 2 {
		t.Errorf("recompiled Stats.Rules = %d, want 2", res.Stats.Rules)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}
