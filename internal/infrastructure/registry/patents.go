package registry

import (
	"encoding/json"

	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// NewPatentsAdapter returns the adapter for the granted-patents registry.
// It extracts a per-item identifier from every returned record so the
// aggregator can deduplicate grants that surface under several name
// variations.
func NewPatentsAdapter(opts Options) Adapter {
	return newSourceAdapter(ipactivity.SourcePatents, opts, patentShapes, extractPatentIDs)
}

func extractPatentIDs(items []json.RawMessage, batch *activity.Batch) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, PatentID(item))
	}
	batch.IDs = ids
}
