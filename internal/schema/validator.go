// Package schema validates configuration and alert records against their struct tags,
// including the CloudTrail-specific tags registered here.
package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"cloudtrail-sentry/internal/alerting"

	"github.com/go-playground/validator/v10"
)

// eventSourcePattern matches CloudTrail event sources.
// Examples: "iam.amazonaws.com", "signin.amazonaws.com", "access-analyzer.amazonaws.com"
var eventSourcePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*(\.[a-z0-9-]+)*\.amazonaws\.com$`)

// eventNamePattern matches CloudTrail API action names, e.g. "CreateUser",
// "PutBucketPolicy20060301".
var eventNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validator validates structs with go-playground/validator.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the custom tags registered:
//
//	event_source  CloudTrail event source (ValidateEventSource)
//	event_name    CloudTrail API action (ValidateEventName)
//	destination   notification destination accepted by alerting.ParseDestination
func NewValidator() *Validator {
	v := validator.New()

	// Report yaml/json field names rather than Go names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"yaml", "json"} {
			name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})

	v.RegisterValidation("event_source", func(fl validator.FieldLevel) bool {
		return ValidateEventSource(fl.Field().String())
	})
	v.RegisterValidation("event_name", func(fl validator.FieldLevel) bool {
		return ValidateEventName(fl.Field().String())
	})
	v.RegisterValidation("destination", func(fl validator.FieldLevel) bool {
		_, err := alerting.ParseDestination(fl.Field().String())
		return err == nil
	})

	return &Validator{validate: v}
}

// Struct validates s against its validate tags.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateRecord validates an alert record before it is published.
func (v *Validator) ValidateRecord(r *alerting.Record) error {
	if r == nil {
		return fmt.Errorf("validation failed: record is nil")
	}
	return v.Struct(r)
}

// ValidateEventSource checks if s looks like a CloudTrail event source.
func ValidateEventSource(s string) bool {
	return eventSourcePattern.MatchString(s)
}

// ValidateEventName checks if s looks like a CloudTrail API action.
func ValidateEventName(s string) bool {
	return eventNamePattern.MatchString(s)
}
