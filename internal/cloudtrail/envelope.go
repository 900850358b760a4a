// Package cloudtrail turns loosely structured CloudTrail audit records into typed,
// fully defaulted views that detection rules can evaluate without nil checks.
package cloudtrail

import (
	"encoding/json"
	"fmt"

	sentryerr "cloudtrail-sentry/internal/errors"
)

// Record is one CloudTrail event as decoded from JSON. Nothing about its shape is
// guaranteed; use Extract to read it.
type Record map[string]any

// Envelope is the EventBridge wrapper that carries a CloudTrail record in Detail.
type Envelope struct {
	Version    string `json:"version,omitempty"`
	ID         string `json:"id,omitempty"`
	DetailType string `json:"detail-type,omitempty"`
	Source     string `json:"source,omitempty"`
	Account    string `json:"account,omitempty"`
	Region     string `json:"region,omitempty"`
	Time       string `json:"time,omitempty"`
	Detail     Record `json:"detail"`
}

// NewEnvelope wraps a bare record, e.g. one read from a trail log file.
func NewEnvelope(account, region string, detail Record) *Envelope {
	if detail == nil {
		detail = Record{}
	}
	return &Envelope{
		DetailType: "AWS API Call via CloudTrail",
		Account:    account,
		Region:     region,
		Detail:     detail,
	}
}

// DecodeEnvelope parses an EventBridge envelope. A missing, null or non-object detail
// becomes an empty record. A document that has no detail but looks like a bare
// CloudTrail record (it carries eventSource or eventName) is wrapped as the detail.
// Only JSON that is not an object at all is rejected.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", sentryerr.ErrInvalidEnvelope, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is null", sentryerr.ErrInvalidEnvelope)
	}

	if _, hasDetail := raw["detail"]; !hasDetail {
		_, hasSource := raw["eventSource"]
		_, hasName := raw["eventName"]
		if hasSource || hasName {
			var detail Record
			if err := json.Unmarshal(data, &detail); err != nil {
				return nil, fmt.Errorf("%w: %v", sentryerr.ErrInvalidEnvelope, err)
			}
			return NewEnvelope("", "", detail), nil
		}
	}

	env := &Envelope{}
	for key, dst := range map[string]*string{
		"version":     &env.Version,
		"id":          &env.ID,
		"detail-type": &env.DetailType,
		"source":      &env.Source,
		"account":     &env.Account,
		"region":      &env.Region,
		"time":        &env.Time,
	} {
		if v, ok := raw[key]; ok {
			// wrong-typed envelope fields are ignored
			_ = json.Unmarshal(v, dst)
		}
	}

	env.Detail = Record{}
	if v, ok := raw["detail"]; ok {
		var detail Record
		if err := json.Unmarshal(v, &detail); err == nil && detail != nil {
			env.Detail = detail
		}
	}

	return env, nil
}
