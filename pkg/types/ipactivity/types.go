// Package ipactivity defines the wire-level types for IP activity
// aggregation: the per-source lookup trace and the merged summary returned
// by GET /api/ipdata, plus the async recount DTOs.
package ipactivity

import (
	"encoding/json"
	"time"
)

// SourceKind identifies one upstream registry.
type SourceKind string

const (
	SourcePatents    SourceKind = "patents"
	SourceTrademarks SourceKind = "trademarks"
	SourcePending    SourceKind = "pendingApplications"
)

// AllSources returns the registries in their canonical evaluation order.
// Trace entries for one candidate appear in this order.
func AllSources() []SourceKind {
	return []SourceKind{SourcePatents, SourceTrademarks, SourcePending}
}

// TraceEntry records one lookup attempt against one registry for one
// candidate name.  Entries are immutable once the aggregate call completes
// and are returned verbatim in the response's debug field.
type TraceEntry struct {
	Source    SourceKind `json:"source"`
	Candidate string     `json:"candidate"`
	URL       string     `json:"url"`
	OK        bool       `json:"ok"`
	Count     int        `json:"count"`
	// Error holds the failure reason ("timeout", "connection",
	// "http-status", "invalid-response") when OK is false.
	Error string `json:"error,omitempty"`
	// Status is the upstream HTTP status for http-status failures.
	Status int `json:"status,omitempty"`
	// Sample carries a few raw pending-application items for caller-side
	// diagnosis of the classification heuristics.
	Sample []json.RawMessage `json:"sample,omitempty"`
}

// AggregateResult is the merged answer for one assignee.
type AggregateResult struct {
	// AssigneeQueried is the trimmed base name the caller asked about.
	AssigneeQueried string `json:"assigneeQueried"`
	// TriedAssignees lists every candidate name variation actually queried,
	// in evaluation order, base name first.
	TriedAssignees []string `json:"triedAssignees"`
	// Patents is the size of the identifier set deduplicated across all
	// candidates; a patent appearing under two name variations counts once.
	Patents int `json:"patents"`
	// PendingApps sums per-candidate counts.  Pending-application sources
	// expose no stable identifier, so cross-candidate double counting is an
	// accepted approximation.
	PendingApps int `json:"pendingApps"`
	// PCTApps is zero unless a classifier with a real PCT signal is
	// configured; the value is never synthesized.
	PCTApps int `json:"pctApps"`
	// ForeignNational is zero unless a classifier with a real signal is
	// configured; the value is never synthesized.
	ForeignNational int `json:"foreignNational"`
	// Provisionals is a keyword-heuristic count over sampled pending
	// applications, approximate by construction.
	Provisionals int `json:"provisionals"`
	// Trademarks sums per-candidate counts, same approximation as
	// PendingApps.
	Trademarks int `json:"trademarks"`
	// Debug is the full ordered trace of every lookup attempt.
	Debug []TraceEntry `json:"debug"`
}

// RecountRequest asks for an asynchronous aggregation run.
type RecountRequest struct {
	Assignee    string `json:"assignee"`
	TryVariants bool   `json:"tryVariants"`
}

// RecountReceipt acknowledges an accepted recount request.
type RecountReceipt struct {
	RequestID  string    `json:"requestId"`
	Status     string    `json:"status"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// RecountStatusQueued is the only receipt status; completion is observable
// via the recount result endpoint or the completed event.
const RecountStatusQueued = "queued"

// RecountResult is a completed recount retrieved by request ID.
type RecountResult struct {
	RequestID   string          `json:"requestId"`
	Assignee    string          `json:"assignee"`
	TryVariants bool            `json:"tryVariants"`
	Result      AggregateResult `json:"result"`
	CompletedAt time.Time       `json:"completedAt"`
	// DurationMs is the wall-clock time the aggregation took on the worker.
	DurationMs int64 `json:"durationMs"`
}
