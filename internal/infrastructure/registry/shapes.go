// Package registry implements the upstream source adapters: one per public
// IP registry (patents, trademarks, pending applications).  Each adapter
// issues rate-limited HTTP lookups, tolerates the registry's inconsistent
// response envelopes through an explicit ordered list of shape probes, and
// returns outcomes as data — a failed lookup is a value in the trace, never
// an error that aborts aggregation.
package registry

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Shape is one probe for locating the item array inside an upstream response
// envelope.  A Shape either names a field path or accepts emptiness; the
// per-source probe lists below make envelope handling enumerable instead of
// incidental.
type Shape struct {
	// Path is a gjson path to an array-valued field.  The zero value (empty
	// path) is the Empty shape: it matches unconditionally with zero items.
	Path string
}

// NamedField returns a Shape probing the given gjson path.
func NamedField(path string) Shape { return Shape{Path: path} }

// Empty returns the Shape that accepts any body as a zero-item success.
// Every probe list ends with it: an envelope matching none of the named
// fields means "no matches", not "call failed".
func Empty() Shape { return Shape{} }

// IsEmpty reports whether s is the Empty shape.
func (s Shape) IsEmpty() bool { return s.Path == "" }

// Per-source probe lists, in priority order.  The "@this" entry matches a
// bare top-level array, which some registries return with no envelope at all.
var (
	patentShapes = []Shape{
		NamedField("patents"),
		NamedField("results"),
		NamedField("response.docs"),
		NamedField("data"),
		NamedField("@this"),
		Empty(),
	}

	trademarkShapes = []Shape{
		NamedField("results"),
		NamedField("response.docs"),
		NamedField("trademarks"),
		NamedField("data"),
		NamedField("@this"),
		Empty(),
	}

	pendingShapes = []Shape{
		NamedField("applications"),
		NamedField("results"),
		NamedField("response.docs"),
		NamedField("data"),
		NamedField("@this"),
		Empty(),
	}
)

// countFields are probed in order for an upstream-declared total; when none
// is a number, the extracted item count stands in.
var countFields = []string{
	"total",
	"count",
	"numFound",
	"response.numFound",
	"totalHits",
}

// patentIDFields are probed in order on each patent item for its identifier.
var patentIDFields = []string{
	"patentNumber",
	"patent_number",
	"patentId",
	"id",
	"number",
}

// ProbeItems walks shapes in order and returns the items of the first
// array-valued match together with the shape that matched.  Callers pass a
// list ending in Empty(), so the boolean only guards against malformed probe
// lists.
func ProbeItems(body []byte, shapes []Shape) ([]json.RawMessage, Shape, bool) {
	for _, s := range shapes {
		if s.IsEmpty() {
			return nil, s, true
		}
		field := gjson.GetBytes(body, s.Path)
		if !field.IsArray() {
			continue
		}
		raw := field.Array()
		items := make([]json.RawMessage, 0, len(raw))
		for _, el := range raw {
			items = append(items, json.RawMessage(el.Raw))
		}
		return items, s, true
	}
	return nil, Shape{}, false
}

// ProbeCount returns the upstream-declared total for the response body, or
// fallback when no count field holds a number.
func ProbeCount(body []byte, fallback int) int {
	for _, path := range countFields {
		field := gjson.GetBytes(body, path)
		if field.Type == gjson.Number {
			return int(field.Int())
		}
	}
	return fallback
}

// PatentID extracts the identifier of one patent item by probing the known
// id fields in order.  An item carrying none of them contributes its full
// raw JSON as identity, keeping cross-candidate deduplication well-defined.
func PatentID(item json.RawMessage) string {
	for _, path := range patentIDFields {
		field := gjson.GetBytes(item, path)
		if field.Exists() && field.Type != gjson.Null {
			return field.String()
		}
	}
	return string(item)
}
