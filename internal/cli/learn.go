package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	learnCrawl bool
	learnForce bool
)

var learnCmd = &cobra.Command{
	Use:   "learn <url>",
	Short: "Store a web page in the knowledge base",
	Long: `Fetch a URL and store its text content. Unchanged pages are skipped
unless --force is set. With --crawl, same-host sub-pages discovered on
the seed page are learned too, as a background job.

Examples:
  fieldwork learn https://go.dev/doc/effective_go
  fieldwork learn --crawl https://docs.example.com
  fieldwork learn --force https://example.com/changelog`,
	Args: cobra.ExactArgs(1),
	RunE: runLearn,
}

func init() {
	learnCmd.Flags().BoolVar(&learnCrawl, "crawl", false, "crawl same-host sub-pages as a background job")
	learnCmd.Flags().BoolVar(&learnForce, "force", false, "relearn even when content is unchanged")
	rootCmd.AddCommand(learnCmd)
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	url := args[0]

	if learnCrawl {
		snap, err := apiClient.StartCrawl(ctx, url, learnForce)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("start crawl: %w", err)
		}
		fmt.Printf("Crawl started as job %s\n", snap.JobID)
		fmt.Printf("Use 'fieldwork jobs %s' or 'fieldwork crawls' to check progress.\n", snap.JobID)
		return nil
	}

	res, err := apiClient.Learn(ctx, url, learnForce)
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	if res.Skipped {
		fmt.Printf("Skipped %s (content unchanged)\n", res.URL)
		return nil
	}
	fmt.Printf("Learned %s (%q, %d chunks)\n", res.URL, res.Title, res.Chunks)
	return nil
}
