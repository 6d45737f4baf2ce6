package flow

import (
	"testing"
)

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: "default-1", Resource: "R", LimitApp: LimitAppDefault},
		{ID: "specific-A", Resource: "R", LimitApp: "appA"},
		{ID: "specific-B", Resource: "R", LimitApp: "appB"},
		{ID: "other", Resource: "R", LimitApp: LimitAppOther},
		{ID: "default-2", Resource: "R", LimitApp: ""},
	}

	SortRules(rules)

	want := []string{"specific-A", "specific-B", "other", "default-1", "default-2"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order %v)", i, rules[i].ID, id, ids(rules))
		}
	}
}

func TestSortRulesStable(t *testing.T) {
	rules := []Rule{
		{ID: "1", LimitApp: "appB"},
		{ID: "2", LimitApp: "appA"},
		{ID: "3", LimitApp: "appB"},
	}

	SortRules(rules)

	want := []string{"1", "2", "3"}
	for i, id := range want {
		if rules[i].ID != id {
			t.Fatalf("specific rules reordered: %v", ids(rules))
		}
	}
}

func ids(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}
