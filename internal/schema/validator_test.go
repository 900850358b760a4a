package schema

import (
	"strings"
	"testing"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/detection"
)

func TestValidateEventSource(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"iam.amazonaws.com", true},
		{"signin.amazonaws.com", true},
		{"access-analyzer.amazonaws.com", true},
		{"s3.us-east-1.amazonaws.com", true},
		{"IAM.amazonaws.com", false},
		{"iam.example.com", false},
		{"amazonaws.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := ValidateEventSource(tt.source); got != tt.want {
				t.Errorf("ValidateEventSource(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestValidateEventName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"CreateUser", true},
		{"PutBucketPolicy20060301", true},
		{"ConsoleLogin", true},
		{"Create User", false},
		{"1CreateUser", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateEventName(tt.name); got != tt.want {
				t.Errorf("ValidateEventName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func validRecord() *alerting.Record {
	return &alerting.Record{
		ID:          "6a1b2c3d-4e5f-5a6b-8c7d-9e0f1a2b3c4d",
		Severity:    detection.SeverityHigh,
		Interesting: true,
		Reason:      "sensitive identity change",
		Account:     "111122223333",
		Region:      "us-east-1",
		EventSource: "iam.amazonaws.com",
		EventName:   "CreateUser",
		SourceIP:    "unknown",
	}
}

func TestValidator_ValidateRecord(t *testing.T) {
	v := NewValidator()

	t.Run("valid record", func(t *testing.T) {
		if err := v.ValidateRecord(validRecord()); err != nil {
			t.Errorf("ValidateRecord() error = %v", err)
		}
	})

	t.Run("empty source and name allowed", func(t *testing.T) {
		r := validRecord()
		r.EventSource = ""
		r.EventName = ""
		if err := v.ValidateRecord(r); err != nil {
			t.Errorf("ValidateRecord() error = %v", err)
		}
	})

	t.Run("nil record", func(t *testing.T) {
		if err := v.ValidateRecord(nil); err == nil {
			t.Error("expected error for nil record")
		}
	})

	tests := []struct {
		name   string
		mutate func(*alerting.Record)
		field  string
	}{
		{"bad id", func(r *alerting.Record) { r.ID = "not-a-uuid" }, "id"},
		{"bad severity", func(r *alerting.Record) { r.Severity = "urgent" }, "severity"},
		{"bad rule severity", func(r *alerting.Record) { r.RuleSeverity = "urgent" }, "rule_severity"},
		{"bad source", func(r *alerting.Record) { r.EventSource = "iam" }, "event_source"},
		{"bad name", func(r *alerting.Record) { r.EventName = "create user" }, "event_name"},
		{"missing account", func(r *alerting.Record) { r.Account = "" }, "account"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.mutate(r)
			err := v.ValidateRecord(r)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name field %q", err, tt.field)
			}
		})
	}
}

type destinationHolder struct {
	Destination string `yaml:"destination" validate:"omitempty,destination"`
}

func TestValidator_DestinationTag(t *testing.T) {
	v := NewValidator()

	for _, ok := range []string{
		"",
		"arn:aws:sns:us-east-1:111122223333:alerts",
		"kafka://broker:9092/alerts",
		"https://hooks.example.com/x",
	} {
		if err := v.Struct(destinationHolder{Destination: ok}); err != nil {
			t.Errorf("destination %q rejected: %v", ok, err)
		}
	}

	for _, bad := range []string{"ftp://x/y", "arn:aws:sqs:us-east-1:111122223333:q"} {
		if err := v.Struct(destinationHolder{Destination: bad}); err == nil {
			t.Errorf("destination %q accepted", bad)
		}
	}
}
