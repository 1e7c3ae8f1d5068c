package activity

import (
	"encoding/json"
	"strings"
)

// Classification carries the heuristic filing sub-type counts extracted from
// a pending-applications sample.  All three counts are approximations; the
// wire-level result documents them as such.
type Classification struct {
	Provisionals    int
	PCTApps         int
	ForeignNational int
}

// Add accumulates another classification into c.
func (c *Classification) Add(other Classification) {
	c.Provisionals += other.Provisionals
	c.PCTApps += other.PCTApps
	c.ForeignNational += other.ForeignNational
}

// SampleClassifier inspects a small sample of raw pending-application
// records and estimates filing sub-type counts.  Implementations must be
// safe for concurrent use; the aggregator shares one instance across
// lookups.  Keeping this an interface lets a real document parser replace
// keyword matching without touching the aggregator.
type SampleClassifier interface {
	Classify(sample []json.RawMessage) Classification
}

// KeywordClassifier is the default SampleClassifier: case-insensitive
// substring matching over each record's serialized form.  A record counts as
// provisional when it mentions "provisional" without being marked
// non-provisional.  It reports zero PCT and foreign-national filings — those
// require structured fields this heuristic cannot see, and fabricating
// numbers would be worse than an honest zero.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the default keyword-based classifier.
func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

// Classify counts records whose serialized form indicates a provisional
// filing.  Each record contributes at most one to the count regardless of
// how often the keyword appears.
func (k *KeywordClassifier) Classify(sample []json.RawMessage) Classification {
	var c Classification
	for _, raw := range sample {
		text := strings.ToLower(string(raw))
		if !strings.Contains(text, "provisional") {
			continue
		}
		// "nonprovisional" / "non-provisional" markers contain the keyword
		// as a substring; exclude them.
		if strings.Contains(text, "nonprovisional") || strings.Contains(text, "non-provisional") {
			continue
		}
		c.Provisionals++
	}
	return c
}
