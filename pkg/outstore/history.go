package outstore

import "fmt"

// History is a bounded ring of compile results for inspection and
// rollback-style diffing. Not safe for concurrent use on its own; the
// Store serializes access.
type History struct {
	entries []*Result
	maxSize int
}

// NewHistory creates a History with the given maximum size.
func NewHistory(maxSize int) *History {
	return &History{maxSize: maxSize}
}

// Push appends a result, dropping the oldest entry beyond capacity.
func (h *History) Push(r *Result) {
	h.entries = append(h.entries, r)
	if len(h.entries) > h.maxSize {
		h.entries = h.entries[1:]
	}
}

// Get returns the nth most recent entry (0 = most recent).
func (h *History) Get(n int) (*Result, error) {
	if n < 0 || n >= len(h.entries) {
		return nil, fmt.Errorf("history %d: no such entry (have %d)", n, len(h.entries))
	}
	// entries are stored oldest-first, so index from the end
	idx := len(h.entries) - 1 - n
	return h.entries[idx], nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// MaxSize returns the maximum number of entries.
func (h *History) MaxSize() int {
	return h.maxSize
}

// List returns all entries, most recent first.
func (h *History) List() []*Result {
	result := make([]*Result, len(h.entries))
	for i, r := range h.entries {
		result[len(h.entries)-1-i] = r
	}
	return result
}
