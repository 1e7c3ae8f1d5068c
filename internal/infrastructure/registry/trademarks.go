package registry

import (
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

// NewTrademarksAdapter returns the adapter for the trademark registry.
// Trademark records expose no stable cross-variation identifier, so the
// batch carries only its count; per-candidate counts are summed downstream.
func NewTrademarksAdapter(opts Options) Adapter {
	return newSourceAdapter(ipactivity.SourceTrademarks, opts, trademarkShapes, nil)
}
