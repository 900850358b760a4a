package alerting

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/detection"
	"cloudtrail-sentry/internal/logging"

	"github.com/google/uuid"
)

// DefaultMaxRequestChars bounds the request-parameter text embedded in a record.
const DefaultMaxRequestChars = 900

// alertNamespace scopes the name-based alert IDs.
var alertNamespace = uuid.MustParse("6f1c2a7e-4b0d-5c93-8e21-3d9a7b5f0c14")

// DefaultHighSeverityActions returns the event names alerted as high severity.
func DefaultHighSeverityActions() []string {
	return []string{"CreateUser", "AttachUserPolicy", "AuthorizeSecurityGroupIngress"}
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// HighSeverityActions are event names that raise the alert severity to high.
	// Everything else is medium.
	HighSeverityActions []string
	// MaxRequestChars bounds the request-parameter text, in characters.
	MaxRequestChars int
}

// DefaultBuilderConfig returns the default builder configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		HighSeverityActions: DefaultHighSeverityActions(),
		MaxRequestChars:     DefaultMaxRequestChars,
	}
}

// Builder assembles alert records. It holds only its configuration and is safe for
// concurrent use.
type Builder struct {
	high       map[string]bool
	maxRequest int
}

// NewBuilder creates a Builder. A nil action list selects the defaults and a
// non-positive bound selects DefaultMaxRequestChars.
func NewBuilder(cfg BuilderConfig) *Builder {
	actions := cfg.HighSeverityActions
	if actions == nil {
		actions = DefaultHighSeverityActions()
	}
	high := make(map[string]bool, len(actions))
	for _, a := range actions {
		high[strings.TrimSpace(a)] = true
	}

	maxRequest := cfg.MaxRequestChars
	if maxRequest <= 0 {
		maxRequest = DefaultMaxRequestChars
	}

	return &Builder{high: high, maxRequest: maxRequest}
}

// Build combines the envelope metadata, extracted context and classification into a
// record. The same inputs always produce the same record.
func (b *Builder) Build(env *cloudtrail.Envelope, c *cloudtrail.Context, res detection.Result) *Record {
	if env == nil {
		env = &cloudtrail.Envelope{}
	}
	if c == nil {
		c = cloudtrail.Extract(env.Detail)
	}

	account := firstNonEmpty(env.Account, c.AccountID, cloudtrail.Unknown)

	return &Record{
		ID:           alertID(account, c.EventID, env.Detail),
		Severity:     b.Severity(c.Action),
		RuleSeverity: res.Severity,
		Interesting:  res.Interesting,
		RuleID:       res.RuleID,
		Reason:       res.Reason,
		EventTime:    c.Time,

		Account:     account,
		Region:      firstNonEmpty(env.Region, c.Region, cloudtrail.Unknown),
		EventSource: c.Source,
		EventName:   c.Action,
		EventID:     c.EventID,
		SourceIP:    c.SourceAddress,
		UserAgent:   c.UserAgent,
		ErrorCode:   c.ErrorCode,
		Resource:    c.Resource,

		UserIdentity: UserIdentity{
			Type:        c.Identity.Type,
			ARN:         c.Identity.ARN,
			UserName:    c.Identity.UserName,
			PrincipalID: c.Identity.PrincipalID,
		},

		RequestParameters: b.requestText(c.RequestParams),
	}
}

// Severity returns the coarse alert severity for an event name. It does not depend on
// which rule matched.
func (b *Builder) Severity(action string) detection.Severity {
	if b.high[action] {
		return detection.SeverityHigh
	}
	return detection.SeverityMedium
}

// MaxRequestChars returns the request-parameter text bound.
func (b *Builder) MaxRequestChars() int {
	return b.maxRequest
}

func (b *Builder) requestText(params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	data, err := marshalJSON(logging.MaskMap(params))
	if err != nil {
		return "{}"
	}
	return Truncate(string(data), b.maxRequest)
}

// alertID derives a stable UUID from the event ID, or from the whole record when the
// event carries no ID.
func alertID(account, eventID string, detail cloudtrail.Record) string {
	name := account + "/" + eventID
	if eventID == "" {
		data, err := json.Marshal(detail)
		if err != nil {
			data = nil
		}
		name = account + "/record/" + string(data)
	}
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

// marshalJSON encodes v without HTML escaping and without a trailing newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
