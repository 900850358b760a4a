package detection

import (
	"fmt"
	"strings"

	"cloudtrail-sentry/internal/cloudtrail"
)

// Result is the outcome of classifying one event.
type Result struct {
	Interesting bool     `json:"interesting"`
	RuleID      string   `json:"rule_id,omitempty"`
	Reason      string   `json:"reason"`
	Severity    Severity `json:"severity,omitempty"`
}

// NotInteresting is the result for events no rule matched.
var NotInteresting = Result{}

// Classifier evaluates a fixed rule table against extracted contexts.
//
// Evaluation policy: events whose source is not in the monitored allow-list are
// rejected before any rule runs. Otherwise rules run in table order and the first
// match wins; there is no scoring and no combination of rules. A Classifier holds no
// mutable state and is safe for concurrent use.
type Classifier struct {
	rules     []*Rule
	monitored map[string]struct{}
}

// NewClassifier creates a classifier over rules, in priority order, restricted to the
// given event sources.
func NewClassifier(rules []*Rule, monitoredSources []string) (*Classifier, error) {
	seen := make(map[string]bool, len(rules))
	table := make([]*Rule, 0, len(rules))
	for i, rule := range rules {
		if rule == nil {
			return nil, fmt.Errorf("rule %d is nil", i)
		}
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("duplicate rule ID: %s", rule.ID)
		}
		seen[rule.ID] = true
		table = append(table, rule)
	}

	monitored := make(map[string]struct{}, len(monitoredSources))
	for _, source := range monitoredSources {
		if source = strings.TrimSpace(source); source != "" {
			monitored[source] = struct{}{}
		}
	}
	if len(monitored) == 0 {
		return nil, fmt.Errorf("at least one monitored event source is required")
	}

	return &Classifier{rules: table, monitored: monitored}, nil
}

// Classify returns the result of the first matching rule, or NotInteresting.
func (c *Classifier) Classify(ctx *cloudtrail.Context) Result {
	if ctx == nil || !c.Monitors(ctx.Source) {
		return NotInteresting
	}

	for _, rule := range c.rules {
		if rule.Match(ctx) {
			return Result{
				Interesting: true,
				RuleID:      rule.ID,
				Reason:      rule.reason(ctx),
				Severity:    rule.Severity,
			}
		}
	}

	return NotInteresting
}

// Monitors reports whether events from source pass the allow-list.
func (c *Classifier) Monitors(source string) bool {
	_, ok := c.monitored[source]
	return ok
}

// Rules returns the rule table in evaluation order.
func (c *Classifier) Rules() []*Rule {
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
