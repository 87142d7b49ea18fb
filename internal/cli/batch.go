package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"riskgate/decision-api/internal/batch"
	"riskgate/decision-api/internal/domain"
	"riskgate/decision-api/internal/observability"
)

const previewRows = 5

var (
	batchInput   string
	batchOutput  string
	batchWorkers int
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.Flags().StringVar(&batchInput, "input", "transactions_examples.csv", "Path to input CSV")
	batchCmd.Flags().StringVar(&batchOutput, "output", "decisions.csv", "Path to output CSV")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent scorers (0 = one per CPU)")
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score every row of a CSV file",
	Long:  "Reads transactions from --input, scores each row and writes the original columns plus decision, risk_score and reasons to --output.",
	RunE:  runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	rules, err := loadRules()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	summary, err := batch.RunFile(cmd.Context(), batchInput, batchOutput, rules, batch.Options{
		Workers:     batchWorkers,
		PreviewRows: previewRows,
		OnResult:    func(r domain.ScoreResult) { metrics.Observe("batch", r) },
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("batch %s: %w", batchInput, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scored %d transactions -> %s (ACCEPTED %d, IN_REVIEW %d, REJECTED %d)\n\n",
		summary.Rows, batchOutput,
		summary.Decisions[domain.DecisionAccepted],
		summary.Decisions[domain.DecisionInReview],
		summary.Decisions[domain.DecisionRejected],
	)
	return printTable(out, summary.Preview)
}

func printTable(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
