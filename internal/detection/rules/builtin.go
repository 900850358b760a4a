// Package rules provides the built-in CloudTrail detection rules.
package rules

import (
	"fmt"
	"strings"

	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/detection"
)

// Event sources watched by default.
const (
	SourceSignIn     = "signin.amazonaws.com"
	SourceIAM        = "iam.amazonaws.com"
	SourceEC2        = "ec2.amazonaws.com"
	SourceS3         = "s3.amazonaws.com"
	SourceCloudTrail = "cloudtrail.amazonaws.com"
	SourceKMS        = "kms.amazonaws.com"
)

// Rule IDs, in evaluation order.
const (
	IDConsoleLoginAnomaly    = "console-login-anomaly"
	IDSensitiveIdentity      = "sensitive-identity-change"
	IDAuditTrailTampering    = "audit-trail-tampering"
	IDSecurityGroupWorldOpen = "security-group-world-open"
	IDAuthorizationFailure   = "authorization-failure"
)

// MonitoredSources returns the default event source allow-list.
func MonitoredSources() []string {
	return []string{
		SourceSignIn,
		SourceIAM,
		SourceEC2,
		SourceS3,
		SourceCloudTrail,
		SourceKMS,
	}
}

// Builtin returns the built-in rule table in priority order. The first matching rule
// decides the outcome, so the order here is the tie-break.
func Builtin() []*detection.Rule {
	return []*detection.Rule{
		ConsoleLoginAnomaly(),
		SensitiveIdentityChange(),
		AuditTrailTampering(),
		SecurityGroupWorldOpen(),
		AuthorizationFailure(),
	}
}

// NewDefaultClassifier builds a classifier over Builtin restricted to monitored. An
// empty monitored list selects MonitoredSources.
func NewDefaultClassifier(monitored []string) (*detection.Classifier, error) {
	if len(monitored) == 0 {
		monitored = MonitoredSources()
	}
	return detection.NewClassifier(Builtin(), monitored)
}

var (
	identityActions = []string{
		"CreateUser",
		"DeleteUser",
		"CreateAccessKey",
		"DeleteAccessKey",
		"AttachUserPolicy",
		"DetachUserPolicy",
		"PutUserPolicy",
		"DeleteUserPolicy",
		"CreateRole",
		"DeleteRole",
		"AttachRolePolicy",
		"DetachRolePolicy",
		"UpdateAssumeRolePolicy",
	}

	trailActions = []string{
		"StopLogging",
		"DeleteTrail",
		"UpdateTrail",
		"PutEventSelectors",
	}

	ingressActions = []string{
		"AuthorizeSecurityGroupIngress",
		"RevokeSecurityGroupIngress",
	}

	// falsyMFA holds lowercased MFAUsed values that mean no MFA.
	falsyMFA = map[string]bool{"": true, "no": true, "false": true, "none": true}
)

// ConsoleLoginAnomaly flags console sign-ins that failed or did not use MFA.
func ConsoleLoginAnomaly() *detection.Rule {
	return &detection.Rule{
		ID:          IDConsoleLoginAnomaly,
		Name:        "Console Login Anomaly",
		Description: "Console sign-in that did not succeed or was made without MFA",
		Severity:    detection.SeverityHigh,
		Tags:        []string{"authentication", "console", "mfa"},
		MITRE: &detection.MITREMapping{
			TacticID:    "TA0001",
			TacticName:  "Initial Access",
			TechniqueID: "T1078",
		},
		Source:  SourceSignIn,
		Actions: []string{"ConsoleLogin"},
		Match: func(c *cloudtrail.Context) bool {
			if c.Source != SourceSignIn || c.Action != "ConsoleLogin" {
				return false
			}
			return c.LoginStatus != "Success" || falsyMFA[strings.ToLower(c.MFAUsed)]
		},
		Reason: func(c *cloudtrail.Context) string {
			return fmt.Sprintf("ConsoleLogin status=%s, MFAUsed=%s", orNone(c.LoginStatus), orNone(c.MFAUsed))
		},
	}
}

// SensitiveIdentityChange flags IAM operations that create, delete or re-scope
// principals, credentials and policies.
func SensitiveIdentityChange() *detection.Rule {
	return actionRule(&detection.Rule{
		ID:          IDSensitiveIdentity,
		Name:        "Sensitive Identity Change",
		Description: "IAM user, role, access key or policy was created, deleted or changed",
		Severity:    detection.SeverityHigh,
		Tags:        []string{"iam", "persistence", "privilege-escalation"},
		MITRE: &detection.MITREMapping{
			TacticID:    "TA0003",
			TacticName:  "Persistence",
			TechniqueID: "T1098",
		},
		Source:  SourceIAM,
		Actions: identityActions,
	}, "sensitive identity change")
}

// AuditTrailTampering flags changes that stop or reduce CloudTrail logging.
func AuditTrailTampering() *detection.Rule {
	return actionRule(&detection.Rule{
		ID:          IDAuditTrailTampering,
		Name:        "Audit Trail Tampering",
		Description: "CloudTrail logging was stopped, deleted or reconfigured",
		Severity:    detection.SeverityCritical,
		Tags:        []string{"cloudtrail", "defense-evasion"},
		MITRE: &detection.MITREMapping{
			TacticID:    "TA0005",
			TacticName:  "Defense Evasion",
			TechniqueID: "T1562.008",
		},
		Source:  SourceCloudTrail,
		Actions: trailActions,
	}, "audit trail change")
}

// SecurityGroupWorldOpen flags ingress rule changes that involve an all-addresses range.
func SecurityGroupWorldOpen() *detection.Rule {
	actions := set(ingressActions)
	return &detection.Rule{
		ID:          IDSecurityGroupWorldOpen,
		Name:        "Security Group World-Open Change",
		Description: "Security group ingress change referencing 0.0.0.0/0 or ::/0",
		Severity:    detection.SeverityHigh,
		Tags:        []string{"ec2", "network", "exposure"},
		MITRE: &detection.MITREMapping{
			TacticID:    "TA0005",
			TacticName:  "Defense Evasion",
			TechniqueID: "T1562.007",
		},
		Source:  SourceEC2,
		Actions: ingressActions,
		Match: func(c *cloudtrail.Context) bool {
			return c.Source == SourceEC2 && actions[c.Action] && cloudtrail.AnyWorldOpen(c.IngressCIDRs)
		},
		Reason: func(*cloudtrail.Context) string {
			return "security-group world-open change"
		},
	}
}

// AuthorizationFailure flags any monitored call rejected for lack of permission.
// The substring match is case-sensitive, as CloudTrail error codes are.
func AuthorizationFailure() *detection.Rule {
	return &detection.Rule{
		ID:          IDAuthorizationFailure,
		Name:        "Authorization Failure",
		Description: "API call denied with an Unauthorized or AccessDenied error",
		Severity:    detection.SeverityMedium,
		Tags:        []string{"authorization", "discovery"},
		MITRE: &detection.MITREMapping{
			TacticID:    "TA0007",
			TacticName:  "Discovery",
			TechniqueID: "T1078",
		},
		Match: func(c *cloudtrail.Context) bool {
			return c.ErrorCode != "" &&
				(strings.Contains(c.ErrorCode, "Unauthorized") || strings.Contains(c.ErrorCode, "AccessDenied"))
		},
		Reason: func(c *cloudtrail.Context) string {
			return "API error " + c.ErrorCode
		},
	}
}

// actionRule completes r with a predicate on Source and Actions and a fixed reason.
func actionRule(r *detection.Rule, reason string) *detection.Rule {
	actions := set(r.Actions)
	source := r.Source
	r.Match = func(c *cloudtrail.Context) bool {
		return c.Source == source && actions[c.Action]
	}
	r.Reason = func(*cloudtrail.Context) string {
		return reason
	}
	return r
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
