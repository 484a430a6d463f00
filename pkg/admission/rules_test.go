package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const rulesTestDefault = 100

func TestRuleTable_Resolve(t *testing.T) {
	table := NewRuleTable(rulesTestDefault, DefaultRules(rulesTestDefault))

	tests := []struct {
		name      string
		path      string
		wantLimit int
		wantClass string
	}{
		{"gesture routes get double", "/v1/gestures/recognize", 200, "/v1/gestures"},
		{"ai routes get half", "/v1/ai/ask", 50, "/v1/ai"},
		{"admin routes get a quarter", "/v1/admin/institutions", 25, "/v1/admin"},
		{"unmatched gets default", "/v1/sessions", rulesTestDefault, "default"},
		{"root gets default", "/", rulesTestDefault, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, class := table.Resolve(tt.path)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantClass, class)
		})
	}
}

func TestRuleTable_LongestPrefixWins(t *testing.T) {
	table := NewRuleTable(rulesTestDefault, []Rule{
		{Prefix: "/v1", Limit: 10},
		{Prefix: "/v1/ai", Limit: 5},
		{Prefix: "/v1/ai/batch", Limit: 2},
	})

	limit, class := table.Resolve("/v1/ai/batch/submit")
	assert.Equal(t, 2, limit)
	assert.Equal(t, "/v1/ai/batch", class)

	limit, _ = table.Resolve("/v1/ai/ask")
	assert.Equal(t, 5, limit)

	limit, _ = table.Resolve("/v1/other")
	assert.Equal(t, 10, limit)
}

func TestDefaultRules_IntegerDivision(t *testing.T) {
	rules := DefaultRules(5)
	byPrefix := make(map[string]int, len(rules))
	for _, r := range rules {
		byPrefix[r.Prefix] = r.Limit
	}
	assert.Equal(t, 10, byPrefix["/v1/gestures"])
	assert.Equal(t, 2, byPrefix["/v1/ai"])
	assert.Equal(t, 1, byPrefix["/v1/admin"])
}
