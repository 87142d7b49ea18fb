package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"riskgate/decision-api/internal/sample"
)

var (
	seedOutput string
	seedCount  int
	seedValue  int64
)

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringVar(&seedOutput, "output", "transactions_examples.csv", "Path of the CSV to write")
	seedCmd.Flags().IntVar(&seedCount, "count", 300, "Number of transactions")
	seedCmd.Flags().Int64Var(&seedValue, "seed", sample.DefaultSeed, "Random seed; the same seed reproduces the same file")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate an example transactions CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedCount < 0 {
			return fmt.Errorf("--count must not be negative, got %d", seedCount)
		}
		if err := sample.WriteFile(seedOutput, seedCount, seedValue); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated %d transactions -> %s\n", seedCount, seedOutput)
		return nil
	},
}
