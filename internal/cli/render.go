package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloudtrail-sentry/internal/detection"
	"cloudtrail-sentry/internal/replay"
	"cloudtrail-sentry/internal/sentry"
	"cloudtrail-sentry/internal/startup"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func field(name, value string) string {
	return label.Render(name) + " " + value
}

// renderResult renders one pipeline result as a boxed card.
func renderResult(name string, r *sentry.Result) string {
	a := r.Alert

	var lines []string
	if name != "" {
		lines = append(lines, muted.Render(name))
	}

	if !r.Interesting {
		lines = append(lines,
			statusOK.Render("not interesting"),
			field("Event", fmt.Sprintf("%s @ %s", orDash(a.EventName), orDash(a.EventSource))),
			field("Account", a.Account+"  "+a.Region),
		)
		return quietBox.Render(strings.Join(lines, "\n"))
	}

	lines = append(lines,
		title.Render(r.Subject),
		field("Reason", r.Reason),
		field("Severity", formatSeverity(a.Severity, 9)+muted.Render("rule "+a.RuleID+" ("+string(a.RuleSeverity)+")")),
		field("Event", fmt.Sprintf("%s @ %s", orDash(a.EventName), orDash(a.EventSource))),
		field("EventID", orDash(a.EventID)),
		field("Account", a.Account+"  "+a.Region),
		field("User", a.UserIdentity.ARN),
		field("Source IP", a.SourceIP),
		field("Resource", a.Resource),
		field("Time", orDash(a.EventTime)),
		field("Alert ID", a.ID),
	)
	if a.ErrorCode != "" {
		lines = append(lines, field("Error", a.ErrorCode))
	}

	switch {
	case r.Published:
		lines = append(lines, field("Delivery", statusOK.Render("published")))
	case r.DeliveryError != "":
		lines = append(lines, field("Delivery", statusError.Render(r.DeliveryError)))
	default:
		lines = append(lines, field("Delivery", muted.Render("not delivered")))
	}

	return box.Render(strings.Join(lines, "\n"))
}

// renderRules renders the rule table in evaluation order.
func renderRules(rules []*detection.Rule, monitored []string) string {
	var b strings.Builder

	b.WriteString(title.Render(fmt.Sprintf("Rules (%d, first match wins)", len(rules))))
	b.WriteString("\n\n")

	header := fmt.Sprintf("%-3s %-28s %-9s %-26s %-10s %s", "#", "ID", "Severity", "Source", "MITRE", "Actions")
	b.WriteString(tableHeader.Render(header))
	b.WriteString("\n")

	for i, r := range rules {
		source := r.Source
		if source == "" {
			source = "any monitored"
		}
		mitre := "-"
		if r.MITRE != nil {
			mitre = r.MITRE.TechniqueID
		}
		actions := strings.Join(r.Actions, ", ")
		if actions == "" {
			actions = "any"
		}
		fmt.Fprintf(&b, "%-3d %-28s %s %-26s %-10s %s\n",
			i+1, r.ID, formatSeverity(r.Severity, 9), source, mitre, truncate(actions, 60))
	}

	b.WriteString("\n")
	b.WriteString(muted.Render("Monitored sources: " + strings.Join(monitored, ", ")))
	return b.String()
}

// renderSummary renders a replay summary.
func renderSummary(s *replay.Summary) string {
	lines := []string{
		title.Render("Replay " + s.Source),
		field("Files", fmt.Sprintf("%d (%d failed)", s.Files, s.FailedFiles)),
		field("Records", fmt.Sprintf("%d", s.Records)),
		field("Interesting", fmt.Sprintf("%d", s.Interesting)),
		field("Published", fmt.Sprintf("%d", s.Published)),
		field("Duration", s.Duration.Round(time.Millisecond).String()),
	}
	if s.DeliveryFailures > 0 {
		lines = append(lines, field("Failures", statusError.Render(fmt.Sprintf("%d deliveries failed", s.DeliveryFailures))))
	}

	ids := make([]string, 0, len(s.ByRule))
	for id := range s.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		lines = append(lines, field("", fmt.Sprintf("%-28s %d", id, s.ByRule[id])))
	}

	var b strings.Builder
	b.WriteString(box.Render(strings.Join(lines, "\n")))

	if len(s.Alerts) > 0 {
		b.WriteString("\n\n")
		header := fmt.Sprintf("%-21s %-9s %-30s %-14s %s", "Time", "Severity", "Event", "Account", "Reason")
		b.WriteString(tableHeader.Render(header))
		b.WriteString("\n")
		for _, a := range s.Alerts {
			fmt.Fprintf(&b, "%-21s %s %-30s %-14s %s\n",
				truncate(orDash(a.EventTime), 21), formatSeverity(a.Severity, 9),
				truncate(a.EventName, 30), a.Account, truncate(a.Reason, 60))
		}
	}
	return b.String()
}

// renderChecks renders diagnostic results as a status table.
func renderChecks(results []startup.DiagnosticResult) string {
	var b strings.Builder
	b.WriteString(tableHeader.Render(fmt.Sprintf("%-8s %-28s %s", "STATUS", "CHECK", "MESSAGE")))
	b.WriteString("\n")

	var failed, warned int
	for _, r := range results {
		b.WriteString(checkStatusStyle(r.Status).Render(fmt.Sprintf("%-8s", r.Status)))
		fmt.Fprintf(&b, " %-28s %s\n", truncate(r.Name, 28), r.Message)
		switch r.Status {
		case startup.StatusError:
			failed++
		case startup.StatusWarning:
			warned++
		}
	}

	summary := fmt.Sprintf("%d checks, %d warnings, %d errors", len(results), warned, failed)
	if failed > 0 {
		b.WriteString(statusError.Render(summary))
	} else {
		b.WriteString(statusOK.Render(summary))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
