// Package api implements the HTTP REST API and Prometheus metrics endpoint.
package api

import "github.com/psaab/panpol/pkg/paloalto"

// Response is the standard JSON response envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse holds daemon status information.
type StatusResponse struct {
	Uptime         string         `json:"uptime"`
	Compiles       int            `json:"compiles"`
	Failures       int            `json:"failures"`
	LastHash       string         `json:"last_hash,omitempty"`
	LastCompiledAt string         `json:"last_compiled_at,omitempty"`
	LastDuration   string         `json:"last_duration,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	Stats          paloalto.Stats `json:"stats"`
}

// HistoryEntry summarizes one compile run for the history listing.
type HistoryEntry struct {
	Index     int            `json:"index"`
	Hash      string         `json:"hash,omitempty"`
	Timestamp string         `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
	Rules     int            `json:"rules"`
	Stats     paloalto.Stats `json:"stats"`
}

// TextResponse wraps text output such as diffs.
type TextResponse struct {
	Output string `json:"output"`
}
