// Package cli implements the riskgate command line.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/observability"
)

var (
	rulesPath string

	settings config.Settings
	logger   *slog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesPath, "config", "", "Path to rules YAML (default $RISK_CONFIG, else built-in rules)")
}

var rootCmd = &cobra.Command{
	Use:          "riskgate",
	Short:        "Rule-based payment risk decisions",
	Long:         "Scores card payments against a weighted rule set and decides ACCEPTED, IN_REVIEW or REJECTED, either one at a time over HTTP or for a whole CSV file.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return err
		}
		settings = s
		if rulesPath == "" {
			rulesPath = s.RulesPath
		}
		logger = observability.NewLogger(cmd.ErrOrStderr(), observability.LogConfig{
			Level:  s.LogLevel,
			Format: s.LogFormat,
		})
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadRules resolves the effective rules: file, then REJECT_AT / REVIEW_AT
// from the environment, then validation.
func loadRules() (config.Rules, error) {
	rules, err := config.Resolve(rulesPath, config.EnvOverrides())
	if err != nil {
		return config.Rules{}, fmt.Errorf("load rules: %w", err)
	}
	if !rules.Ordered() {
		logger.Warn("reject_at is not above review_at; IN_REVIEW is unreachable",
			"reject_at", rules.ScoreToDecision.RejectAt,
			"review_at", rules.ScoreToDecision.ReviewAt,
		)
	}
	return rules, nil
}
