// Package alerting builds normalized alert records from classified CloudTrail events
// and delivers them to a notification channel.
package alerting

import (
	"cloudtrail-sentry/internal/detection"
)

// UserIdentity is the caller recorded on an alert.
type UserIdentity struct {
	Type        string `json:"type"`
	ARN         string `json:"arn"`
	UserName    string `json:"user_name"`
	PrincipalID string `json:"principal_id"`
}

// Record is the normalized alert handed to notification channels.
type Record struct {
	ID           string             `json:"id" validate:"required,uuid"`
	Severity     detection.Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	RuleSeverity detection.Severity `json:"rule_severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Interesting  bool               `json:"interesting"`
	RuleID       string             `json:"rule_id,omitempty"`
	Reason       string             `json:"reason"`
	EventTime    string             `json:"event_time"`

	Account     string `json:"account" validate:"required"`
	Region      string `json:"region" validate:"required"`
	EventSource string `json:"event_source" validate:"omitempty,event_source"`
	EventName   string `json:"event_name" validate:"omitempty,event_name"`
	EventID     string `json:"event_id,omitempty"`
	SourceIP    string `json:"source_ip" validate:"required"`
	UserAgent   string `json:"user_agent"`
	ErrorCode   string `json:"error_code,omitempty"`
	Resource    string `json:"resource"`

	UserIdentity UserIdentity `json:"user_identity"`

	// RequestParameters is the masked, truncated JSON text of requestParameters.
	RequestParameters string `json:"request_parameters"`
}
