package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var showBlackboard bool

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect background jobs",
	Long: `List all background jobs or inspect a specific job by ID.

Examples:
  fieldwork jobs                 # List all jobs
  fieldwork jobs ab12cd34        # Show details for job ab12cd34
  fieldwork jobs ab12cd34 -b     # Include the job's blackboard entries`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().BoolVarP(&showBlackboard, "blackboard", "b", false, "show blackboard entries")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	list, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-12s %-26s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "STARTED")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range list {
		started := job.StartedAt.Format("15:04:05")
		fmt.Printf("%-10s %-10s %-12s %-26s %s\n", job.ID, job.Type, job.Status, job.Progress, started)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Type: %s\n", job.Type)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.Goal != "" {
		fmt.Printf("  Goal: %s\n", job.Goal)
	}
	if job.Progress != "" {
		fmt.Printf("  Progress: %s\n", job.Progress)
	}
	if job.BudgetMaxSearches > 0 || job.BudgetMaxPages > 0 {
		fmt.Printf("  Budget: %d/%d searches, %d/%d pages\n",
			job.SearchesUsed, job.BudgetMaxSearches, job.PagesLearned, job.BudgetMaxPages)
	}
	if job.AgentCount > 0 {
		fmt.Printf("  Agents: %d/%d done\n", job.AgentsDone, job.AgentCount)
	}
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		duration := job.CompletedAt.Sub(job.StartedAt)
		fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	if len(job.Plan) > 0 {
		fmt.Println("\nPlan:")
		for i, task := range job.Plan {
			fmt.Printf("  %d. %s\n", i+1, task)
		}
	}

	if job.Result != "" {
		fmt.Printf("\nResult (%s):\n%s\n", job.ResultType, job.Result)
	}

	if showBlackboard {
		entries, err := apiClient.Blackboard(ctx, id)
		if err != nil {
			return fmt.Errorf("get blackboard: %w", err)
		}
		fmt.Printf("\nBlackboard (%d entries):\n", len(entries))
		for _, e := range entries {
			fmt.Printf("  [%s %s/%s] %s\n", e.CreatedAt.Format("15:04:05"), e.AgentID, e.Type, e.Content)
		}
	}

	return nil
}
