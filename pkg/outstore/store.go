// Package outstore tracks compile results: the latest rendered document
// plus a bounded history of prior runs for inspection and diffing.
package outstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/psaab/panpol/pkg/paloalto"
)

// Result is the outcome of one compile run.
type Result struct {
	Document   string         `json:"-"`
	Hash       string         `json:"hash,omitempty"`
	CompiledAt time.Time      `json:"compiled_at"`
	Duration   time.Duration  `json:"-"`
	Err        string         `json:"error,omitempty"`
	Stats      paloalto.Stats `json:"stats"`
}

// OK reports whether the compile succeeded.
func (r *Result) OK() bool { return r.Err == "" }

// Store holds the latest compile result and a bounded history.
type Store struct {
	mu       sync.RWMutex
	latest   *Result
	history  *History
	outPath  string
	compiles int
	failures int
	dropped  int
}

// New creates a Store. If outPath is non-empty, every successful
// compile is also written there.
func New(outPath string) *Store {
	return &Store{
		history: NewHistory(50),
		outPath: outPath,
	}
}

// Publish records res as the latest result and appends it to the
// history, filling in the document hash and timestamp. A failed write
// to the output path is returned but the result is kept either way.
func (s *Store) Publish(res *Result) error {
	if res.Document != "" {
		res.Hash = HashDocument(res.Document)
	}
	if res.CompiledAt.IsZero() {
		res.CompiledAt = time.Now()
	}

	s.mu.Lock()
	s.latest = res
	s.history.Push(res)
	s.compiles++
	if !res.OK() {
		s.failures++
	}
	s.dropped += res.Stats.DroppedTerms
	outPath := s.outPath
	s.mu.Unlock()

	if outPath != "" && res.OK() {
		if err := os.WriteFile(outPath, []byte(res.Document), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

// Latest returns the most recent result, or nil before the first compile.
func (s *Store) Latest() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// LastGood returns the most recent successful result, or nil.
func (s *Store) LastGood() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.history.List() {
		if r.OK() {
			return r
		}
	}
	return nil
}

// Counts returns the total number of compiles and of failed compiles
// since the store was created. History trimming does not affect them.
func (s *Store) Counts() (compiles, failures int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiles, s.failures
}

// DroppedTotal returns the cumulative number of terms dropped across
// all compiles.
func (s *Store) DroppedTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// History returns all recorded results, most recent first.
func (s *Store) History() []*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.List()
}

// Get returns the nth most recent result (0 = latest).
func (s *Store) Get(n int) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Get(n)
}

// Diff renders a unified diff between the documents of two history
// entries. An empty string means the documents are identical.
func (s *Store) Diff(a, b int) (string, error) {
	s.mu.RLock()
	ra, err := s.history.Get(a)
	if err != nil {
		s.mu.RUnlock()
		return "", err
	}
	rb, err := s.history.Get(b)
	if err != nil {
		s.mu.RUnlock()
		return "", err
	}
	s.mu.RUnlock()

	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(ra.Document),
		B:        difflib.SplitLines(rb.Document),
		FromFile: diffLabel(a, ra),
		ToFile:   diffLabel(b, rb),
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// diffLabel names one side of a diff by history index and short hash.
func diffLabel(n int, r *Result) string {
	h := r.Hash
	if len(h) > 12 {
		h = h[:12]
	}
	if h == "" {
		h = "failed"
	}
	return fmt.Sprintf("history/%d (%s)", n, h)
}

// HashDocument returns the hex SHA-256 of a rendered document.
func HashDocument(doc string) string {
	sum := sha256.Sum256([]byte(doc))
	return hex.EncodeToString(sum[:])
}
