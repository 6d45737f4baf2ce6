package datasource

import (
	"fmt"

	"gopkg.in/yaml.v2"

	gferrors "github.com/vnykmshr/flowguard/pkg/common/errors"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

// YamlRule is one entry of a rule document. JSON documents decode the same
// way since YAML is a superset of JSON.
type YamlRule struct {
	ID                string  `yaml:"id"`
	Resource          string  `yaml:"resource"`
	ThresholdKind     string  `yaml:"thresholdKind"`
	Threshold         float64 `yaml:"threshold"`
	LimitApp          string  `yaml:"limitApp"`
	Strategy          string  `yaml:"strategy"`
	RefResource       string  `yaml:"refResource"`
	ControlBehavior   string  `yaml:"controlBehavior"`
	WarmUpPeriodSec   uint32  `yaml:"warmUpPeriodSec"`
	WarmUpColdFactor  uint32  `yaml:"warmUpColdFactor"`
	MaxQueueingTimeMs uint32  `yaml:"maxQueueingTimeMs"`
	Regex             bool    `yaml:"regex"`
	CustomController  string  `yaml:"customController"`
}

var validKeys = map[string]bool{
	"id":                true,
	"resource":          true,
	"thresholdKind":     true,
	"threshold":         true,
	"limitApp":          true,
	"strategy":          true,
	"refResource":       true,
	"controlBehavior":   true,
	"warmUpPeriodSec":   true,
	"warmUpColdFactor":  true,
	"maxQueueingTimeMs": true,
	"regex":             true,
	"customController":  true,
}

// ParseRules decodes a rule document: a list of rules, or a mapping with a
// single "rules" list. Unknown keys and unknown enum names are rejected.
// An empty document yields no rules.
func ParseRules(data []byte) ([]flow.Rule, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, documentError("error loading rule document", err)
	}
	if doc == nil {
		return nil, nil
	}

	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[interface{}]interface{}:
		for key := range v {
			if key != "rules" {
				return nil, documentError(fmt.Sprintf("unexpected top-level key %v", key), nil)
			}
		}
		list, ok := v["rules"].([]interface{})
		if !ok && v["rules"] != nil {
			return nil, documentError("rules must be a list", nil)
		}
		items = list
	default:
		return nil, documentError("document must be a list of rules", nil)
	}

	rules := make([]flow.Rule, 0, len(items))
	for i, item := range items {
		if err := validateKeys(i, item); err != nil {
			return nil, err
		}
		raw, err := yaml.Marshal(item)
		if err != nil {
			return nil, documentError(fmt.Sprintf("rule %d", i), err)
		}
		var yr YamlRule
		if err := yaml.Unmarshal(raw, &yr); err != nil {
			return nil, documentError(fmt.Sprintf("rule %d", i), err)
		}
		rule, err := yr.Rule()
		if err != nil {
			return nil, documentError(fmt.Sprintf("rule %d", i), err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func validateKeys(index int, item interface{}) error {
	fields, ok := item.(map[interface{}]interface{})
	if !ok {
		return documentError(fmt.Sprintf("rule %d is not a mapping", index), nil)
	}
	for key := range fields {
		name, ok := key.(string)
		if !ok || !validKeys[name] {
			return documentError(fmt.Sprintf("rule %d has unknown key %v", index, key), nil)
		}
	}
	return nil
}

// Rule converts the document entry to a flow rule. The rule itself is
// validated when it is loaded.
func (y YamlRule) Rule() (flow.Rule, error) {
	kind, err := flow.ParseThresholdKind(y.ThresholdKind)
	if err != nil {
		return flow.Rule{}, err
	}
	strategy, err := flow.ParseStrategy(y.Strategy)
	if err != nil {
		return flow.Rule{}, err
	}
	behavior, err := flow.ParseControlBehavior(y.ControlBehavior)
	if err != nil {
		return flow.Rule{}, err
	}
	return flow.Rule{
		ID:                y.ID,
		Resource:          y.Resource,
		ThresholdKind:     kind,
		Threshold:         y.Threshold,
		LimitApp:          y.LimitApp,
		Strategy:          strategy,
		RefResource:       y.RefResource,
		ControlBehavior:   behavior,
		WarmUpPeriodSec:   y.WarmUpPeriodSec,
		WarmUpColdFactor:  y.WarmUpColdFactor,
		MaxQueueingTimeMs: y.MaxQueueingTimeMs,
		Regex:             y.Regex,
		CustomController:  y.CustomController,
	}, nil
}

// FromRule is the inverse of Rule.
func FromRule(r flow.Rule) YamlRule {
	return YamlRule{
		ID:                r.ID,
		Resource:          r.Resource,
		ThresholdKind:     r.ThresholdKind.String(),
		Threshold:         r.Threshold,
		LimitApp:          r.LimitApp,
		Strategy:          r.Strategy.String(),
		RefResource:       r.RefResource,
		ControlBehavior:   r.ControlBehavior.String(),
		WarmUpPeriodSec:   r.WarmUpPeriodSec,
		WarmUpColdFactor:  r.WarmUpColdFactor,
		MaxQueueingTimeMs: r.MaxQueueingTimeMs,
		Regex:             r.Regex,
		CustomController:  r.CustomController,
	}
}

// MarshalRules encodes rules as a YAML rule document that ParseRules
// accepts.
func MarshalRules(rules []flow.Rule) ([]byte, error) {
	doc := make([]YamlRule, len(rules))
	for i, r := range rules {
		doc[i] = FromRule(r)
	}
	return yaml.Marshal(doc)
}

func documentError(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("datasource: %s: %w", msg, gferrors.ErrInvalidConfiguration)
	}
	return fmt.Errorf("datasource: %s: %w", msg, cause)
}
