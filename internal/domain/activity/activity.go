// Package activity holds the pure domain model of one IP-activity
// aggregation: per-attempt lookup outcomes, the diagnostic trace, and the
// heuristic sample classifier.  Nothing here performs I/O; adapters produce
// these values and the aggregator folds them.
package activity

import (
	"encoding/json"
	"fmt"

	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// Failure reasons recorded on FetchError.  The set is closed: adapters map
// every failure mode onto one of these so traces stay enumerable.
const (
	// ReasonConnection covers DNS, dial, and transport-level failures.
	ReasonConnection = "connection"
	// ReasonTimeout covers per-request and overall-deadline expiry.
	ReasonTimeout = "timeout"
	// ReasonHTTPStatus covers non-2xx responses; Status carries the code.
	ReasonHTTPStatus = "http-status"
	// ReasonInvalidResponse covers bodies that fail to parse as JSON.
	ReasonInvalidResponse = "invalid-response"
)

// FetchError describes one failed lookup attempt.  Failures are data at the
// adapter boundary: they travel inside Outcome values and trace entries, and
// are never raised as Go errors on the aggregation path.
type FetchError struct {
	Reason string
	// Status is the HTTP status code for ReasonHTTPStatus failures, 0
	// otherwise.
	Status int
}

// Error implements the error interface for logging call sites; the aggregate
// path itself never treats a FetchError as a control-flow error.
func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d)", e.Reason, e.Status)
	}
	return e.Reason
}

// Batch is the normalized payload of one successful lookup.
type Batch struct {
	// Count is the number of matching records this attempt contributes,
	// taken from an upstream-declared total when present, otherwise the
	// extracted item count.
	Count int
	// IDs holds per-record identifiers; only the patents adapter fills it,
	// enabling cross-candidate deduplication.
	IDs []string
	// Sample holds up to MaxSampleDocs raw items; only the
	// pending-applications adapter fills it, for heuristic classification
	// and the trace.
	Sample []json.RawMessage
}

// Outcome is one attempt against one source for one candidate.  Exactly one
// of Batch and Err is non-nil once resolved.
type Outcome struct {
	Source    ipactivity.SourceKind
	Candidate string
	URL       string
	Batch     *Batch
	Err       *FetchError
}

// OK reports whether the attempt succeeded.  An empty batch is still ok:
// "no matches" and "call failed" are distinct states.
func (o Outcome) OK() bool { return o.Err == nil && o.Batch != nil }

// Count returns the records this outcome contributes, zero for failures.
func (o Outcome) Count() int {
	if !o.OK() {
		return 0
	}
	return o.Batch.Count
}

// Success builds a resolved successful Outcome.  A nil batch is normalized to
// an empty one so OK() semantics stay uniform.
func Success(source ipactivity.SourceKind, candidate, url string, batch *Batch) Outcome {
	if batch == nil {
		batch = &Batch{}
	}
	return Outcome{Source: source, Candidate: candidate, URL: url, Batch: batch}
}

// Failure builds a resolved failed Outcome.
func Failure(source ipactivity.SourceKind, candidate, url string, ferr *FetchError) Outcome {
	if ferr == nil {
		ferr = &FetchError{Reason: ReasonConnection}
	}
	return Outcome{Source: source, Candidate: candidate, URL: url, Err: ferr}
}

// Final returns the accepted outcome of an attempt sequence: the last
// element.  ok is false for an empty sequence, which adapters never produce.
func Final(attempts []Outcome) (Outcome, bool) {
	if len(attempts) == 0 {
		return Outcome{}, false
	}
	return attempts[len(attempts)-1], true
}
