package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var crawlsCmd = &cobra.Command{
	Use:   "crawls",
	Short: "List site crawls and their page counters",
	RunE:  runCrawls,
}

var retryCmd = &cobra.Command{
	Use:   "retry <url>",
	Short: "Retry a page that failed during a crawl",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	rootCmd.AddCommand(crawlsCmd)
	rootCmd.AddCommand(retryCmd)
}

func runCrawls(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	crawls, err := apiClient.ListCrawls(ctx)
	if err != nil {
		return fmt.Errorf("list crawls: %w", err)
	}

	if len(crawls) == 0 {
		fmt.Println("No crawls found")
		return nil
	}

	for _, c := range crawls {
		fmt.Printf("%s [%s] job %s\n", c.Seed, c.Status, c.JobID)
		fmt.Printf("  %d total: %d learned, %d skipped, %d failed\n",
			c.Total, c.Learned, c.Skipped, c.Failed)
		if c.Error != "" {
			fmt.Printf("  Error: %s\n", c.Error)
		}
		for _, u := range c.FailedURLs {
			fmt.Printf("  failed: %s\n", u)
		}
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	snap, err := apiClient.RetryURL(ctx, args[0])
	if err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	fmt.Printf("Retried. Crawl of %s now: %d learned, %d skipped, %d failed of %d\n",
		snap.Seed, snap.Learned, snap.Skipped, snap.Failed, snap.Total)
	return nil
}
