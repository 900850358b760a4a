package alerting

import (
	"fmt"
	"strings"
)

// SubjectMaxChars bounds notification subjects.
const SubjectMaxChars = 100

// MessageFormat selects how the notification body is rendered.
type MessageFormat string

const (
	FormatText MessageFormat = "text"
	FormatJSON MessageFormat = "json"
)

// ParseMessageFormat parses a format name. An empty name selects FormatText.
func ParseMessageFormat(s string) (MessageFormat, error) {
	switch MessageFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown message format: %q", s)
	}
}

// Subject returns the notification subject for r.
func Subject(r *Record) string {
	name := r.EventName
	if name == "" {
		name = "Event"
	}
	return Truncate("Security Alert: "+name, SubjectMaxChars)
}

// TextBody renders r as a human-readable message.
func TextBody(r *Record) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[%s] %s @ %s\n", r.Reason, r.EventName, r.EventSource)
	fmt.Fprintf(&sb, "Severity: %s", r.Severity)
	if r.RuleSeverity != "" {
		fmt.Fprintf(&sb, "  Rule: %s (%s)", r.RuleID, r.RuleSeverity)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "EventID: %s\n", r.EventID)
	fmt.Fprintf(&sb, "Account: %s  Region: %s\n", r.Account, r.Region)
	fmt.Fprintf(&sb, "User: %s\n", r.UserIdentity.ARN)
	fmt.Fprintf(&sb, "Source IP: %s  UserAgent: %s\n", r.SourceIP, r.UserAgent)
	fmt.Fprintf(&sb, "Resource: %s\n", r.Resource)
	if r.ErrorCode != "" {
		fmt.Fprintf(&sb, "Error: %s\n", r.ErrorCode)
	}
	fmt.Fprintf(&sb, "Time: %s\n", r.EventTime)
	fmt.Fprintf(&sb, "Request: %s", r.RequestParameters)

	return sb.String()
}

// JSONBody renders r as JSON.
func JSONBody(r *Record) (string, error) {
	data, err := marshalJSON(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert: %w", err)
	}
	return string(data), nil
}

// Render renders the body of r in format.
func Render(format MessageFormat, r *Record) (string, error) {
	if format == FormatJSON {
		return JSONBody(r)
	}
	return TextBody(r), nil
}

// NewNotification renders r into a notification for destination.
func NewNotification(destination string, format MessageFormat, r *Record) (*Notification, error) {
	body, err := Render(format, r)
	if err != nil {
		return nil, err
	}
	return &Notification{
		Destination: destination,
		Subject:     Subject(r),
		Body:        body,
		Record:      r,
	}, nil
}
