package flow

import "sort"

func limitAppRank(limitApp string) int {
	switch limitApp {
	case "", LimitAppDefault:
		return 2
	case LimitAppOther:
		return 1
	default:
		return 0
	}
}

// SortRules orders rules for evaluation: origin-specific rules first, then
// LimitAppOther, then LimitAppDefault. Rules in the same group keep their
// relative order.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return limitAppRank(rules[i].LimitApp) < limitAppRank(rules[j].LimitApp)
	})
}

func sortShapers(shapers []*TrafficShaper) {
	sort.SliceStable(shapers, func(i, j int) bool {
		return limitAppRank(shapers[i].rule.LimitApp) < limitAppRank(shapers[j].rule.LimitApp)
	})
}
