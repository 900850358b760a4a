package cli

import (
	"fmt"
	"strings"

	"cloudtrail-sentry/internal/detection"
	"cloudtrail-sentry/internal/startup"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Colors
	primary    = lipgloss.Color("#7C3AED")
	secondary  = lipgloss.Color("#10B981")
	warning    = lipgloss.Color("#F59E0B")
	orange     = lipgloss.Color("#F97316")
	danger     = lipgloss.Color("#EF4444")
	mutedColor = lipgloss.Color("#6B7280")

	muted = lipgloss.NewStyle().Foreground(mutedColor)

	title = lipgloss.NewStyle().
		Bold(true).
		Foreground(primary)

	label = lipgloss.NewStyle().
		Foreground(mutedColor).
		Width(12)

	box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primary).
		Padding(0, 1)

	quietBox = box.BorderForeground(mutedColor)

	statusOK = lipgloss.NewStyle().
			Foreground(secondary).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	tableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(primary).
			BorderBottom(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(mutedColor)
)

// severityStyle returns the style for sev.
func severityStyle(sev detection.Severity) lipgloss.Style {
	switch sev {
	case detection.SeverityCritical:
		return statusError
	case detection.SeverityHigh:
		return lipgloss.NewStyle().Foreground(orange).Bold(true)
	case detection.SeverityMedium:
		return lipgloss.NewStyle().Foreground(warning).Bold(true)
	case detection.SeverityLow:
		return statusOK
	default:
		return muted
	}
}

// checkStatusStyle returns the style for a diagnostic status.
func checkStatusStyle(s startup.Status) lipgloss.Style {
	switch s {
	case startup.StatusOK:
		return statusOK
	case startup.StatusWarning:
		return lipgloss.NewStyle().Foreground(warning).Bold(true)
	case startup.StatusError:
		return statusError
	default:
		return muted
	}
}

// formatSeverity renders sev upper-cased and padded to width.
func formatSeverity(sev detection.Severity, width int) string {
	text := strings.ToUpper(string(sev))
	if text == "" {
		text = "-"
	}
	return severityStyle(sev).Render(fmt.Sprintf("%-*s", width, text))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
