package types

import (
	"sort"
	"strings"
	"time"
)

// DecisionContext is the per-instrument aggregate of the freshest fragment per
// source. Owned by the context store; a returned copy is never mutated again.
type DecisionContext struct {
	Symbol      string
	Fragments   map[SourceTag]ContextFragment
	LastUpdated map[SourceTag]time.Time
	BuiltAt     time.Time
}

// Fragment returns the fragment for the given source, if present.
func (c *DecisionContext) Fragment(src SourceTag) (ContextFragment, bool) {
	if c == nil {
		return ContextFragment{}, false
	}
	f, ok := c.Fragments[src]
	return f, ok
}

// ActiveExpert prefers the primary expert source, falling back to flow_expert.
func (c *DecisionContext) ActiveExpert() (*ExpertData, bool) {
	if f, ok := c.Fragment(SourceExpert); ok && f.Expert != nil {
		return f.Expert, true
	}
	if f, ok := c.Fragment(SourceFlowExpert); ok && f.Expert != nil {
		return f.Expert, true
	}
	return nil, false
}

// NotReady is the normal "waiting for more data" outcome of a build attempt.
// It is a value, not an error.
type NotReady struct {
	Symbol  string    `json:"symbol"`
	Missing []string  `json:"missing,omitempty"`
	Stale   []string  `json:"stale,omitempty"`
	AsOf    time.Time `json:"as_of"`
}

func (n *NotReady) Reason() string {
	if n == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if len(n.Missing) > 0 {
		sorted := append([]string(nil), n.Missing...)
		sort.Strings(sorted)
		parts = append(parts, "missing="+strings.Join(sorted, ","))
	}
	if len(n.Stale) > 0 {
		sorted := append([]string(nil), n.Stale...)
		sort.Strings(sorted)
		parts = append(parts, "stale="+strings.Join(sorted, ","))
	}
	return strings.Join(parts, " ")
}
