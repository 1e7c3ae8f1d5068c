package ipactivity_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/pkg/types/ipactivity"
)

func TestAllSources_Order(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []ipactivity.SourceKind{
		ipactivity.SourcePatents,
		ipactivity.SourceTrademarks,
		ipactivity.SourcePending,
	}, ipactivity.AllSources())
}

// The response keys are the public contract; renaming any of them breaks
// existing consumers.
func TestAggregateResult_WireFieldNames(t *testing.T) {
	t.Parallel()

	res := ipactivity.AggregateResult{
		AssigneeQueried: "Acme",
		TriedAssignees:  []string{"Acme", "Acme LLC"},
		Patents:         3,
		Trademarks:      2,
		Debug:           []ipactivity.TraceEntry{},
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	for _, key := range []string{
		"assigneeQueried", "triedAssignees", "patents", "pendingApps",
		"pctApps", "foreignNational", "provisionals", "trademarks", "debug",
	} {
		_, ok := raw[key]
		assert.True(t, ok, "missing response field %q", key)
	}
	assert.Len(t, raw, 9)
}

func TestTraceEntry_FailureOmitsSuccessOnlyFields(t *testing.T) {
	t.Parallel()

	entry := ipactivity.TraceEntry{
		Source:    ipactivity.SourcePending,
		Candidate: "Acme",
		URL:       "https://registry.example/apps?q=Acme",
		OK:        false,
		Error:     "timeout",
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"error":"timeout"`)
	assert.Contains(t, s, `"count":0`)
	assert.NotContains(t, s, `"status"`)
	assert.NotContains(t, s, `"sample"`)
}

func TestTraceEntry_SuccessOmitsError(t *testing.T) {
	t.Parallel()

	entry := ipactivity.TraceEntry{
		Source:    ipactivity.SourcePatents,
		Candidate: "Acme",
		URL:       "https://registry.example/patents?q=Acme",
		OK:        true,
		Count:     3,
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
}
