package datasource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

func TestParseRulesAllFields(t *testing.T) {
	doc := `
- id: r1
  resource: orders
  thresholdKind: Concurrency
  threshold: 5
  limitApp: other
  strategy: chain
  refResource: api
  controlBehavior: warmUpRateLimiter
  warmUpPeriodSec: 10
  warmUpColdFactor: 4
  maxQueueingTimeMs: 200
  regex: true
  customController: token_bucket
`
	rules, err := ParseRules([]byte(doc))
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, flow.Rule{
		ID:                "r1",
		Resource:          "orders",
		ThresholdKind:     flow.Concurrency,
		Threshold:         5,
		LimitApp:          flow.LimitAppOther,
		Strategy:          flow.Chain,
		RefResource:       "api",
		ControlBehavior:   flow.WarmUpRateLimiter,
		WarmUpPeriodSec:   10,
		WarmUpColdFactor:  4,
		MaxQueueingTimeMs: 200,
		Regex:             true,
		CustomController:  "token_bucket",
	}, rules[0])
}

func TestParseRulesDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(ordersDoc))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, flow.QPS, rules[0].ThresholdKind)
	assert.Equal(t, flow.Direct, rules[0].Strategy)
	assert.Equal(t, flow.Reject, rules[0].ControlBehavior)
	assert.Equal(t, "appA", rules[1].LimitApp)
}

func TestParseRulesForms(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"list", ordersDoc, 2},
		{"rules key", "rules:\n  - resource: orders\n    threshold: 1\n", 1},
		{"json", `[{"resource": "orders", "threshold": 1, "controlBehavior": "WarmUp"}]`, 1},
		{"empty document", "", 0},
		{"empty rules key", "rules:\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := ParseRules([]byte(tt.doc))
			require.NoError(t, err)
			assert.Len(t, rules, tt.want)
		})
	}
}

func TestParseRulesInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "- resource: orders\n  limit: 1\n"},
		{"unknown top-level key", "policies:\n  - resource: orders\n"},
		{"scalar document", "orders"},
		{"scalar rule", "- orders\n"},
		{"rules not a list", "rules: orders\n"},
		{"unknown behavior", "- resource: orders\n  controlBehavior: drop\n"},
		{"unknown strategy", "- resource: orders\n  strategy: sideways\n"},
		{"unknown kind", "- resource: orders\n  thresholdKind: bytes\n"},
		{"malformed", "- resource: [orders\n"},
		{"wrong type", "- resource: orders\n  threshold: lots\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.Error(t, err)
		})
	}

	_, err := ParseRules([]byte("- resource: orders\n  limit: 1\n"))
	assert.True(t, errors.Is(err, gferrors.ErrInvalidConfiguration))
	_, err = ParseRules([]byte("- resource: orders\n  strategy: sideways\n"))
	assert.True(t, gferrors.IsValidationError(err))
}

func TestMarshalRules(t *testing.T) {
	rules := []flow.Rule{
		{ID: "a", Resource: "orders", Threshold: 10},
		{Resource: "orders", ThresholdKind: flow.Concurrency, Threshold: 2, LimitApp: "appA"},
		{Resource: "search", Threshold: 5, ControlBehavior: flow.RateLimiter, MaxQueueingTimeMs: 100},
	}
	data, err := MarshalRules(rules)
	require.NoError(t, err)

	parsed, err := ParseRules(data)
	require.NoError(t, err)
	assert.Equal(t, rules, parsed)
}
