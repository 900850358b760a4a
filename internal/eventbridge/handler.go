// Package eventbridge adapts EventBridge deliveries of CloudTrail events to the pipeline.
package eventbridge

import (
	"context"
	"encoding/json"

	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/sentry"

	"github.com/aws/aws-lambda-go/events"
)

// ToEnvelope converts an EventBridge event. A missing, null or non-object detail
// becomes an empty record, which classifies as not interesting.
func ToEnvelope(ev events.CloudWatchEvent) *cloudtrail.Envelope {
	var detail cloudtrail.Record
	if len(ev.Detail) > 0 {
		var raw any
		if err := json.Unmarshal(ev.Detail, &raw); err == nil {
			if m, ok := raw.(map[string]any); ok {
				detail = m
			}
		}
	}

	env := cloudtrail.NewEnvelope(ev.AccountID, ev.Region, detail)
	env.Version = ev.Version
	env.ID = ev.ID
	env.Source = ev.Source
	if ev.DetailType != "" {
		env.DetailType = ev.DetailType
	}
	if !ev.Time.IsZero() {
		env.Time = ev.Time.UTC().Format("2006-01-02T15:04:05Z")
	}
	return env
}

// Handler returns a Lambda handler for p. It never returns an error, so EventBridge
// does not retry events whose alert could not be delivered.
func Handler(p *sentry.Pipeline) func(context.Context, events.CloudWatchEvent) (*sentry.Result, error) {
	return func(ctx context.Context, ev events.CloudWatchEvent) (*sentry.Result, error) {
		return p.Handle(ctx, ToEnvelope(ev)), nil
	}
}
