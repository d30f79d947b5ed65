package cli

import (
	"context"
	"fmt"

	"github.com/mkessler/fieldwork/internal/metrics"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove finished jobs from the registry",
	Long:  `Remove all jobs in a terminal state (done, error, failed). Running jobs are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := apiClient.ClearJobs(context.Background())
		if err != nil {
			return fmt.Errorf("clear jobs: %w", err)
		}
		fmt.Printf("Cleared %d finished jobs\n", n)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := apiClient.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		fmt.Printf("Uptime: %.0fs\n", snap.UptimeSeconds)
		for _, row := range []struct {
			name string
			op   *metrics.OperationSnapshot
		}{
			{"search", snap.Search},
			{"fetch", snap.Fetch},
			{"learn", snap.Learn},
			{"llm", snap.LLMGenerate},
			{"sandbox", snap.SandboxRun},
		} {
			if row.op == nil {
				continue
			}
			fmt.Printf("%-8s %6d calls  avg %.1fms  min %dms  max %dms\n",
				row.name, row.op.Count, row.op.AvgTimeMs, row.op.MinTimeMs, row.op.MaxTimeMs)
			if row.op.TotalInputTokens != nil && row.op.TotalOutputTokens != nil {
				fmt.Printf("         tokens: %d in, %d out\n",
					*row.op.TotalInputTokens, *row.op.TotalOutputTokens)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
}
