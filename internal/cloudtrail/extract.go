package cloudtrail

import (
	"strconv"
	"strings"
)

// Unknown is substituted for identity, address and resource fields that are absent.
const Unknown = "unknown"

// Identity describes the caller of an API operation.
type Identity struct {
	Type        string `json:"type"`
	ARN         string `json:"arn"`
	PrincipalID string `json:"principal_id"`
	UserName    string `json:"user_name"`
	AccountID   string `json:"account_id"`
}

// Context is a typed view over a Record. Every field holds a defined value, so rules
// never branch on absence.
type Context struct {
	Source        string
	Action        string
	ErrorCode     string
	ErrorMessage  string
	EventID       string
	Time          string
	SourceAddress string
	UserAgent     string
	AccountID     string
	Region        string
	Identity      Identity

	// LoginStatus is responseElements.ConsoleLogin.
	LoginStatus string
	// MFAUsed is additionalEventData.MFAUsed rendered as text.
	MFAUsed string

	RequestParams map[string]any
	IngressCIDRs  []string
	Resource      string
}

// resourceParamKeys are request parameters that name the affected resource, in
// preference order.
var resourceParamKeys = []string{
	"userName", "roleName", "policyArn", "groupId", "name",
	"trailName", "bucketName", "keyId",
}

// Extract builds a Context from a record. It never fails: absent or wrong-typed
// fields fall back to their defaults.
func Extract(r Record) *Context {
	root := map[string]any(r)
	identity := object(root, "userIdentity")
	params := object(root, "requestParameters")

	c := &Context{
		Source:        text(root, "eventSource"),
		Action:        text(root, "eventName"),
		ErrorCode:     text(root, "errorCode"),
		ErrorMessage:  text(root, "errorMessage"),
		EventID:       text(root, "eventID"),
		Time:          text(root, "eventTime"),
		SourceAddress: textOr(root, "sourceIPAddress", Unknown),
		UserAgent:     textOr(root, "userAgent", Unknown),
		AccountID:     text(root, "recipientAccountId"),
		Region:        text(root, "awsRegion"),
		Identity: Identity{
			Type:        text(identity, "type"),
			ARN:         identityARN(identity),
			PrincipalID: text(identity, "principalId"),
			UserName:    text(identity, "userName"),
			AccountID:   text(identity, "accountId"),
		},
		LoginStatus:   text(object(root, "responseElements"), "ConsoleLogin"),
		MFAUsed:       flag(object(root, "additionalEventData"), "MFAUsed"),
		RequestParams: params,
		IngressCIDRs:  IngressCIDRs(params),
	}
	c.Resource = resource(root, params)

	return c
}

// LogAttrs returns the key/value pairs logged for every evaluated event.
func (c *Context) LogAttrs() []any {
	return []any{
		"event_id", c.EventID,
		"event_name", c.Action,
		"event_source", c.Source,
		"user", c.Identity.ARN,
		"source_ip", c.SourceAddress,
		"region", c.Region,
		"time", c.Time,
		"error_code", c.ErrorCode,
	}
}

// identityARN prefers arn, then principalId, then Unknown.
func identityARN(identity map[string]any) string {
	if arn := text(identity, "arn"); arn != "" {
		return arn
	}
	if principal := text(identity, "principalId"); principal != "" {
		return principal
	}
	return Unknown
}

func resource(root, params map[string]any) string {
	if list, ok := root["resources"].([]any); ok {
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if arn := text(entry, "ARN"); arn != "" {
				return arn
			}
		}
	}
	for _, key := range resourceParamKeys {
		if v := text(params, key); v != "" {
			return v
		}
	}
	return Unknown
}

// object descends through path and returns the object found there. An absent or
// non-object step yields an empty object, never nil.
func object(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok || next == nil {
			return map[string]any{}
		}
		cur = next
	}
	if cur == nil {
		return map[string]any{}
	}
	return cur
}

// text returns the trimmed string at key, or "" when absent or not a string.
func text(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func textOr(m map[string]any, key, fallback string) string {
	if s := text(m, key); s != "" {
		return s
	}
	return fallback
}

// flag renders a yes/no style value as text. CloudTrail uses "Yes"/"No" strings for
// MFAUsed, but booleans show up in hand-built events.
func flag(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
