// Package detection decides whether a CloudTrail event is alert-worthy by running it
// through an ordered table of detection rules.
package detection

import (
	"fmt"

	"cloudtrail-sentry/internal/cloudtrail"
)

// Severity levels for rules.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known level.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities from 1 (low) to 4 (critical); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// MITREMapping maps the rule to MITRE ATT&CK.
type MITREMapping struct {
	TacticID    string `json:"tactic_id" yaml:"tactic_id"`
	TacticName  string `json:"tactic_name" yaml:"tactic_name"`
	TechniqueID string `json:"technique_id" yaml:"technique_id"`
}

// Rule is one detection rule: a pure predicate over an extracted context plus the
// reason and severity reported when it matches. Source and Actions describe what the
// predicate looks at; they are informational and not consulted by the classifier.
type Rule struct {
	ID          string
	Name        string
	Description string
	Severity    Severity
	Tags        []string
	MITRE       *MITREMapping
	Source      string
	Actions     []string

	// Match must be deterministic and depend only on its argument.
	Match func(*cloudtrail.Context) bool
	// Reason renders the alert reason for a matched context. When nil, Name is used.
	Reason func(*cloudtrail.Context) string
}

// Validate validates the rule definition.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.Match == nil {
		return fmt.Errorf("rule %s: match function is required", r.ID)
	}
	return nil
}

// reason returns the alert reason for a matched context.
func (r *Rule) reason(c *cloudtrail.Context) string {
	if r.Reason == nil {
		return r.Name
	}
	return r.Reason(c)
}
