package registry

import (
	"encoding/json"

	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// NewPendingAdapter returns the adapter for the pending-applications
// registry.  It is the only adapter with a fallback endpoint (the registry
// publishes two envelope shapes behind different paths) and the only one
// that retains a raw item sample, which feeds heuristic filing-type
// classification and the diagnostic trace.
func NewPendingAdapter(opts Options) Adapter {
	opts.applyFallbacks()
	sampleSize := opts.SampleSize
	return newSourceAdapter(ipactivity.SourcePending, opts, pendingShapes,
		func(items []json.RawMessage, batch *activity.Batch) {
			extractPendingSample(items, batch, sampleSize)
		})
}

func extractPendingSample(items []json.RawMessage, batch *activity.Batch, sampleSize int) {
	if len(items) == 0 {
		return
	}
	n := len(items)
	if sampleSize > 0 && n > sampleSize {
		n = sampleSize
	}
	sample := make([]json.RawMessage, n)
	copy(sample, items[:n])
	batch.Sample = sample
}
