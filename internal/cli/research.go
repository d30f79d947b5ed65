package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkessler/fieldwork/internal/client"
	"github.com/mkessler/fieldwork/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	maxSearches int
	maxPages    int
	agentCount  int
	watchJob    bool
)

var researchCmd = &cobra.Command{
	Use:   "research <goal...>",
	Short: "Submit a background research job",
	Long: `Submit a research goal. A single agent works the goal within the
given search/page budget; with --agents > 1 the goal is decomposed into
sub-tasks worked by a swarm of concurrent agents.

Examples:
  fieldwork research "compare rust web frameworks"
  fieldwork research --searches 10 --pages 20 "kubernetes operators"
  fieldwork research --agents 4 --watch "state of on-device LLMs"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().IntVar(&maxSearches, "searches", 0, "max web searches (server default if 0)")
	researchCmd.Flags().IntVar(&maxPages, "pages", 0, "max pages to learn (server default if 0)")
	researchCmd.Flags().IntVar(&agentCount, "agents", 1, "number of concurrent agents (>1 runs a swarm)")
	researchCmd.Flags().BoolVarP(&watchJob, "watch", "w", false, "watch job progress until it finishes")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	goal := strings.Join(args, " ")
	opts := client.ResearchOptions{
		MaxSearches: maxSearches,
		MaxPages:    maxPages,
		AgentCount:  agentCount,
	}

	var (
		snap jobs.Snapshot
		err  error
	)
	if agentCount > 1 {
		snap, err = apiClient.StartSwarm(ctx, goal, opts)
	} else {
		snap, err = apiClient.StartResearch(ctx, goal, opts)
	}
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	fmt.Printf("Job %s submitted (%s)\n", snap.ID, snap.Type)

	if watchJob {
		return WatchJob(apiClient, snap)
	}
	fmt.Printf("Use 'fieldwork jobs %s' to check status.\n", snap.ID)
	return nil
}
