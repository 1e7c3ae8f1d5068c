package aggregation

import (
	"github.com/turtacn/ipscope/internal/domain/activity"
)

// The folds below are pure functions over accepted outcomes.  Keeping them
// free of the fan-out machinery makes the merge rules independently testable
// and keeps all accumulation out of the concurrent section.

// dedupPatentCount returns the size of the union of patent identifier sets
// across outcomes.  A grant surfacing under several name variations counts
// once; the result is invariant under outcome reordering.
func dedupPatentCount(finals []activity.Outcome) int {
	seen := make(map[string]struct{})
	for _, o := range finals {
		if !o.OK() {
			continue
		}
		for _, id := range o.Batch.IDs {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// sumCounts sums the contributed counts of all successful outcomes.  Sources
// without stable identifiers cannot be deduplicated across variations, so
// overlap is accepted and documented rather than silently masked.
func sumCounts(finals []activity.Outcome) int {
	total := 0
	for _, o := range finals {
		total += o.Count()
	}
	return total
}

// classifySamples runs the classifier over every successful outcome's sample
// and accumulates the heuristic counts.
func classifySamples(finals []activity.Outcome, classifier activity.SampleClassifier) activity.Classification {
	var total activity.Classification
	if classifier == nil {
		return total
	}
	for _, o := range finals {
		if !o.OK() || len(o.Batch.Sample) == 0 {
			continue
		}
		total.Add(classifier.Classify(o.Batch.Sample))
	}
	return total
}
