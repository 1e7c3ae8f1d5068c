package aggregation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/ipscope/internal/domain/activity"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

func patOutcome(candidate string, ids ...string) activity.Outcome {
	return activity.Success(ipactivity.SourcePatents, candidate, "u",
		&activity.Batch{Count: len(ids), IDs: ids})
}

func TestDedupPatentCount_UnionAcrossCandidates(t *testing.T) {
	t.Parallel()

	finals := []activity.Outcome{
		patOutcome("Acme", "A1", "A2"),
		patOutcome("Acme LLC", "A2", "A3"),
	}
	assert.Equal(t, 3, dedupPatentCount(finals))
}

func TestDedupPatentCount_OrderInvariant(t *testing.T) {
	t.Parallel()

	a := patOutcome("Acme", "A1", "A2")
	b := patOutcome("Acme LLC", "A2", "A3")
	c := patOutcome("Acme INC", "A3", "A4")

	assert.Equal(t,
		dedupPatentCount([]activity.Outcome{a, b, c}),
		dedupPatentCount([]activity.Outcome{c, a, b}))
}

func TestDedupPatentCount_SkipsFailures(t *testing.T) {
	t.Parallel()

	finals := []activity.Outcome{
		patOutcome("Acme", "A1"),
		activity.Failure(ipactivity.SourcePatents, "Acme LLC", "u",
			&activity.FetchError{Reason: activity.ReasonConnection}),
	}
	assert.Equal(t, 1, dedupPatentCount(finals))
}

func TestSumCounts(t *testing.T) {
	t.Parallel()

	finals := []activity.Outcome{
		activity.Success(ipactivity.SourceTrademarks, "Acme", "u", &activity.Batch{Count: 2}),
		activity.Success(ipactivity.SourceTrademarks, "Acme LLC", "u", &activity.Batch{Count: 3}),
		activity.Failure(ipactivity.SourceTrademarks, "Acme INC", "u",
			&activity.FetchError{Reason: activity.ReasonTimeout}),
	}
	assert.Equal(t, 5, sumCounts(finals))
	assert.Zero(t, sumCounts(nil))
}

func TestClassifySamples(t *testing.T) {
	t.Parallel()

	finals := []activity.Outcome{
		activity.Success(ipactivity.SourcePending, "Acme", "u", &activity.Batch{
			Count:  2,
			Sample: []json.RawMessage{json.RawMessage(`{"appType":"provisional"}`)},
		}),
		activity.Success(ipactivity.SourcePending, "Acme LLC", "u", &activity.Batch{
			Count:  1,
			Sample: []json.RawMessage{json.RawMessage(`{"appType":"Provisional Utility"}`)},
		}),
	}
	got := classifySamples(finals, activity.NewKeywordClassifier())
	assert.Equal(t, 2, got.Provisionals)
	assert.Zero(t, got.PCTApps)
	assert.Zero(t, got.ForeignNational)
}

func TestClassifySamples_NilClassifier(t *testing.T) {
	t.Parallel()

	finals := []activity.Outcome{
		activity.Success(ipactivity.SourcePending, "Acme", "u", &activity.Batch{
			Sample: []json.RawMessage{json.RawMessage(`{"appType":"provisional"}`)},
		}),
	}
	assert.Equal(t, activity.Classification{}, classifySamples(finals, nil))
}
