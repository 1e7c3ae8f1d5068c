package activity

import "github.com/turtacn/ipscope/pkg/types/ipactivity"

// Trace accumulates one diagnostic entry per lookup attempt during a single
// aggregation.  It is append-only while the aggregation runs and read via
// Entries once complete.  A Trace belongs to exactly one aggregate call and
// is not safe for concurrent use; the aggregator appends from a single
// goroutine after the fan-out settles, preserving candidate order.
type Trace struct {
	entries []ipactivity.TraceEntry
}

// NewTrace returns an empty trace with capacity for the expected number of
// attempts.
func NewTrace(capacity int) *Trace {
	if capacity < 0 {
		capacity = 0
	}
	return &Trace{entries: make([]ipactivity.TraceEntry, 0, capacity)}
}

// Add appends one attempt's outcome.
func (t *Trace) Add(o Outcome) {
	entry := ipactivity.TraceEntry{
		Source:    o.Source,
		Candidate: o.Candidate,
		URL:       o.URL,
		OK:        o.OK(),
	}
	if o.OK() {
		entry.Count = o.Batch.Count
		entry.Sample = o.Batch.Sample
	} else if o.Err != nil {
		entry.Error = o.Err.Reason
		entry.Status = o.Err.Status
	}
	t.entries = append(t.entries, entry)
}

// AddAll appends a whole attempt sequence in order.
func (t *Trace) AddAll(attempts []Outcome) {
	for _, o := range attempts {
		t.Add(o)
	}
}

// Len reports the number of entries appended so far.
func (t *Trace) Len() int { return len(t.entries) }

// Entries returns a copy of the accumulated entries; mutating the returned
// slice never affects the trace.
func (t *Trace) Entries() []ipactivity.TraceEntry {
	out := make([]ipactivity.TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
