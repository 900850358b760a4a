package logging

import (
	"net/url"
	"regexp"
	"strings"
)

// SensitiveFields contains field names whose values should be masked in logs and
// alert bodies. Matching is case-insensitive and also applies to field names that
// contain one of these keywords.
var SensitiveFields = map[string]bool{
	"password":        true,
	"passwd":          true,
	"secret":          true,
	"token":           true,
	"api_key":         true,
	"apikey":          true,
	"private_key":     true,
	"privatekey":      true,
	"client_secret":   true,
	"credentials":     true,
	"authorization":   true,
	"bearer":          true,
	"jwt":             true,
	"session_id":      true,
	"cookie":          true,
	"x-api-key":       true,
	"plaintext":       true,
	"secretstring":    true,
	"secretbinary":    true,
	"sessiontoken":    true,
	"secretaccesskey": true,
}

// MaskedValue is the string used to replace sensitive values.
const MaskedValue = "[REDACTED]"

// MaskSensitiveValue masks a value if the field name is sensitive.
func MaskSensitiveValue(fieldName, value string) string {
	if value == "" {
		return value
	}
	if IsSensitiveField(fieldName) {
		return MaskedValue
	}
	return value
}

// IsSensitiveField checks if a field name is sensitive.
func IsSensitiveField(fieldName string) bool {
	lowerField := strings.ToLower(fieldName)

	if SensitiveFields[lowerField] {
		return true
	}

	for sensitive := range SensitiveFields {
		if strings.Contains(lowerField, sensitive) {
			return true
		}
	}

	return false
}

// MaskMap returns a deep copy of m with the values of sensitive keys replaced by
// MaskedValue and sensitive patterns masked inside remaining strings. m is not
// modified.
func MaskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveField(k) && v != nil {
			out[k] = MaskedValue
			continue
		}
		out[k] = maskValue(v)
	}
	return out
}

func maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return MaskMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = maskValue(item)
		}
		return out
	case string:
		return MaskSensitivePatterns(t)
	default:
		return v
	}
}

// SensitivePatterns contains regex patterns for sensitive data in raw strings.
var SensitivePatterns = []*regexp.Regexp{
	// API keys and tokens (common formats)
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|passwd)['":\s]*[=:]\s*['"]?([a-zA-Z0-9_\-\.]+)['"]?`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.]+`),
	// Basic auth
	regexp.MustCompile(`(?i)basic\s+[a-zA-Z0-9+/=]+`),
	// AWS access key IDs
	regexp.MustCompile(`\b(AKIA|ASIA|ABIA|ACCA)[A-Z0-9]{16}\b`),
}

// MaskSensitivePatterns masks sensitive patterns in a raw string.
func MaskSensitivePatterns(s string) string {
	result := s

	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllString(result, MaskedValue)
	}

	return result
}

// MaskURL hides the credentials, path and query of a URL-style destination, keeping
// the scheme and host. ARNs and other non-URL strings are returned unchanged.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	masked := u.Scheme + "://"
	if u.User != nil {
		masked += MaskedValue + "@"
	}
	masked += u.Host
	if u.Path != "" && u.Path != "/" {
		masked += "/..."
	}
	return masked
}
