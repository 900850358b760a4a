package cli

import (
	"fmt"

	"cloudtrail-sentry/internal/detection"
	"cloudtrail-sentry/internal/detection/rules"

	"github.com/spf13/cobra"
)

// ruleView is the JSON shape of a rule.
type ruleView struct {
	Order       int                     `json:"order"`
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Severity    detection.Severity      `json:"severity"`
	Source      string                  `json:"source,omitempty"`
	Actions     []string                `json:"actions,omitempty"`
	Tags        []string                `json:"tags,omitempty"`
	MITRE       *detection.MITREMapping `json:"mitre,omitempty"`
}

func (a *app) rulesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the rule table in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			classifier, err := rules.NewDefaultClassifier(cfg.Detection.MonitoredSources)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				views := make([]ruleView, 0, len(classifier.Rules()))
				for i, r := range classifier.Rules() {
					views = append(views, ruleView{
						Order:       i + 1,
						ID:          r.ID,
						Name:        r.Name,
						Description: r.Description,
						Severity:    r.Severity,
						Source:      r.Source,
						Actions:     r.Actions,
						Tags:        r.Tags,
						MITRE:       r.MITRE,
					})
				}
				return writeJSON(cmd.OutOrStdout(), views)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderRules(classifier.Rules(), cfg.Detection.MonitoredSources))
			return nil
		},
	}
}
