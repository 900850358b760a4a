package rules

import (
	"encoding/json"
	"testing"

	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/detection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classify(t *testing.T, detail string) detection.Result {
	t.Helper()

	c, err := NewDefaultClassifier(nil)
	require.NoError(t, err)

	var r cloudtrail.Record
	require.NoError(t, json.Unmarshal([]byte(detail), &r))
	return c.Classify(cloudtrail.Extract(r))
}

func TestBuiltin_TableIsValid(t *testing.T) {
	table := Builtin()
	require.Len(t, table, 5)

	wantOrder := []string{
		IDConsoleLoginAnomaly,
		IDSensitiveIdentity,
		IDAuditTrailTampering,
		IDSecurityGroupWorldOpen,
		IDAuthorizationFailure,
	}
	for i, rule := range table {
		assert.NoError(t, rule.Validate())
		assert.Equal(t, wantOrder[i], rule.ID)
		assert.NotNil(t, rule.MITRE)
	}
}

func TestEndToEndScenarios(t *testing.T) {
	tests := []struct {
		name        string
		detail      string
		interesting bool
		ruleID      string
		reason      string
	}{
		{
			name:        "iam create user",
			detail:      `{"eventSource":"iam.amazonaws.com","eventName":"CreateUser"}`,
			interesting: true,
			ruleID:      IDSensitiveIdentity,
			reason:      "sensitive identity change",
		},
		{
			name:        "failed console login",
			detail:      `{"eventSource":"signin.amazonaws.com","eventName":"ConsoleLogin","responseElements":{"ConsoleLogin":"Failure"}}`,
			interesting: true,
			ruleID:      IDConsoleLoginAnomaly,
			reason:      "ConsoleLogin status=Failure, MFAUsed=none",
		},
		{
			name:        "world-open ingress",
			detail:      `{"eventSource":"ec2.amazonaws.com","eventName":"AuthorizeSecurityGroupIngress","requestParameters":{"ipPermissions":[{"ipRanges":[{"cidrIp":"0.0.0.0/0"}]}]}}`,
			interesting: true,
			ruleID:      IDSecurityGroupWorldOpen,
			reason:      "security-group world-open change",
		},
		{
			name:        "restricted ingress",
			detail:      `{"eventSource":"ec2.amazonaws.com","eventName":"AuthorizeSecurityGroupIngress","requestParameters":{"ipPermissions":[{"ipRanges":[{"cidrIp":"10.0.0.0/24"}]}]}}`,
			interesting: false,
		},
		{
			name:        "s3 put object",
			detail:      `{"eventSource":"s3.amazonaws.com","eventName":"PutObject"}`,
			interesting: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, tt.detail)
			assert.Equal(t, tt.interesting, got.Interesting)
			assert.Equal(t, tt.ruleID, got.RuleID)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestConsoleLoginAnomaly(t *testing.T) {
	tests := []struct {
		status      string
		mfa         string
		interesting bool
	}{
		{`"Success"`, `"Yes"`, false},
		{`"Success"`, `"yes"`, false},
		{`"Success"`, `true`, false},
		{`"Success"`, `"No"`, true},
		{`"Success"`, `"NONE"`, true},
		{`"Success"`, `"False"`, true},
		{`"Success"`, `false`, true},
		{`"Success"`, `""`, true},
		{`"Success"`, `null`, true},
		{`"Failure"`, `"Yes"`, true},
		{`"success"`, `"Yes"`, true},
		{`null`, `"Yes"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.mfa, func(t *testing.T) {
			got := classify(t, `{
				"eventSource":"signin.amazonaws.com",
				"eventName":"ConsoleLogin",
				"responseElements":{"ConsoleLogin":`+tt.status+`},
				"additionalEventData":{"MFAUsed":`+tt.mfa+`}
			}`)
			assert.Equal(t, tt.interesting, got.Interesting)
			if tt.interesting {
				assert.Equal(t, IDConsoleLoginAnomaly, got.RuleID)
				assert.Contains(t, got.Reason, "ConsoleLogin status=")
			}
		})
	}
}

func TestConsoleLoginAnomaly_ReasonShowsObservedValues(t *testing.T) {
	got := classify(t, `{
		"eventSource":"signin.amazonaws.com",
		"eventName":"ConsoleLogin",
		"responseElements":{"ConsoleLogin":"Success"},
		"additionalEventData":{"MFAUsed":"No"}
	}`)
	assert.Equal(t, "ConsoleLogin status=Success, MFAUsed=No", got.Reason)
	assert.Equal(t, detection.SeverityHigh, got.Severity)
}

func TestSensitiveIdentityChange_AllActions(t *testing.T) {
	for _, action := range identityActions {
		t.Run(action, func(t *testing.T) {
			got := classify(t, `{
				"eventSource":"iam.amazonaws.com",
				"eventName":"`+action+`",
				"errorCode":"AccessDenied",
				"userIdentity":"garbage"
			}`)
			assert.True(t, got.Interesting)
			assert.Equal(t, IDSensitiveIdentity, got.RuleID)
			assert.Equal(t, "sensitive identity change", got.Reason)
		})
	}

	got := classify(t, `{"eventSource":"iam.amazonaws.com","eventName":"ListUsers"}`)
	assert.False(t, got.Interesting)
}

func TestAuditTrailTampering(t *testing.T) {
	for _, action := range trailActions {
		t.Run(action, func(t *testing.T) {
			got := classify(t, `{"eventSource":"cloudtrail.amazonaws.com","eventName":"`+action+`"}`)
			assert.Equal(t, IDAuditTrailTampering, got.RuleID)
			assert.Equal(t, "audit trail change", got.Reason)
			assert.Equal(t, detection.SeverityCritical, got.Severity)
		})
	}

	got := classify(t, `{"eventSource":"cloudtrail.amazonaws.com","eventName":"LookupEvents"}`)
	assert.False(t, got.Interesting)
}

func TestSecurityGroupWorldOpen(t *testing.T) {
	tests := []struct {
		name        string
		action      string
		params      string
		interesting bool
	}{
		{"flat cidrIp", "AuthorizeSecurityGroupIngress", `{"groupId":"sg-1","cidrIp":"0.0.0.0/0"}`, true},
		{"single object", "AuthorizeSecurityGroupIngress", `{"ipPermissions":{"ipRanges":[{"cidrIp":"0.0.0.0/0"}]}}`, true},
		{"ipv6", "AuthorizeSecurityGroupIngress", `{"ipPermissions":{"items":[{"ipv6Ranges":{"items":[{"cidrIpv6":"::/0"}]}}]}}`, true},
		{"revoke", "RevokeSecurityGroupIngress", `{"ipPermissions":[{"ipRanges":[{"cidrIpv4":"0.0.0.0/0"}]}]}`, true},
		{"one of many", "AuthorizeSecurityGroupIngress", `{"ipPermissions":[{"ipRanges":[{"cidrIp":"10.0.0.0/8"}]},{"ipRanges":[{"cidrIp":"0.0.0.0/0"}]}]}`, true},
		{"restricted flat", "AuthorizeSecurityGroupIngress", `{"cidrIp":"10.0.0.0/24"}`, false},
		{"egress ignored", "AuthorizeSecurityGroupEgress", `{"cidrIp":"0.0.0.0/0"}`, false},
		{"no params", "AuthorizeSecurityGroupIngress", `null`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, `{
				"eventSource":"ec2.amazonaws.com",
				"eventName":"`+tt.action+`",
				"requestParameters":`+tt.params+`
			}`)
			assert.Equal(t, tt.interesting, got.Interesting)
		})
	}
}

func TestAuthorizationFailure(t *testing.T) {
	tests := []struct {
		code        string
		interesting bool
	}{
		{"AccessDenied", true},
		{"Client.UnauthorizedOperation", true},
		{"AccessDeniedException", true},
		{"accessdenied", false},
		{"ThrottlingException", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := classify(t, `{"eventSource":"kms.amazonaws.com","eventName":"Decrypt","errorCode":"`+tt.code+`"}`)
			assert.Equal(t, tt.interesting, got.Interesting)
			if tt.interesting {
				assert.Equal(t, "API error "+tt.code, got.Reason)
				assert.Equal(t, detection.SeverityMedium, got.Severity)
			}
		})
	}
}

func TestUnmonitoredSourceNeverInteresting(t *testing.T) {
	details := []string{
		`{"eventSource":"sts.amazonaws.com","eventName":"AssumeRole","errorCode":"AccessDenied"}`,
		`{"eventSource":"IAM.amazonaws.com","eventName":"CreateUser"}`,
		`{"eventSource":"lambda.amazonaws.com","eventName":"CreateUser"}`,
		`{"eventName":"ConsoleLogin","responseElements":{"ConsoleLogin":"Failure"}}`,
		`{}`,
	}

	for _, d := range details {
		assert.False(t, classify(t, d).Interesting, d)
	}
}

func TestCustomAllowList(t *testing.T) {
	c, err := NewDefaultClassifier([]string{SourceIAM})
	require.NoError(t, err)

	ec2 := cloudtrail.Extract(cloudtrail.Record{
		"eventSource": SourceEC2,
		"eventName":   "RunInstances",
		"errorCode":   "Client.UnauthorizedOperation",
	})
	assert.False(t, c.Classify(ec2).Interesting)
	assert.False(t, c.Monitors(SourceEC2))
	assert.True(t, c.Monitors(SourceIAM))
}

func TestClassifyIsIdempotent(t *testing.T) {
	detail := `{"eventSource":"signin.amazonaws.com","eventName":"ConsoleLogin","responseElements":{"ConsoleLogin":"Failure"}}`
	assert.Equal(t, classify(t, detail), classify(t, detail))
}
