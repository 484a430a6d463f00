package admission

import (
	"sort"
	"strings"
)

// Rule maps a route path prefix to a per-window request limit.
type Rule struct {
	Prefix string
	Limit  int
}

// RuleTable resolves a route path to its quota. The most specific
// (longest) matching prefix wins; unmatched paths get the default limit.
type RuleTable struct {
	rules        []Rule
	defaultLimit int
}

// NewRuleTable creates a rule table. Rules are matched longest-prefix
// first regardless of the order given.
func NewRuleTable(defaultLimit int, rules []Rule) *RuleTable {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RuleTable{rules: sorted, defaultLimit: defaultLimit}
}

// DefaultRules builds the standard quota tiers from the default limit:
// gesture recognition gets twice the default, AI question answering gets
// half, and administrative routes get a quarter.
func DefaultRules(defaultLimit int) []Rule {
	return []Rule{
		{Prefix: "/v1/gestures", Limit: defaultLimit * 2},
		{Prefix: "/v1/ai", Limit: defaultLimit / 2},
		{Prefix: "/v1/admin", Limit: defaultLimit / 4},
	}
}

// Resolve returns the limit for path and the matched rule class (the
// rule prefix, or "default" when no rule matches).
func (t *RuleTable) Resolve(path string) (int, string) {
	for _, r := range t.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r.Limit, r.Prefix
		}
	}
	return t.defaultLimit, "default"
}
