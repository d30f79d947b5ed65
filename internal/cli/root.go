// Package cli provides the command-line interface for fieldwork.
package cli

import (
	"fmt"
	"os"

	"github.com/mkessler/fieldwork/internal/client"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "fieldwork",
	Short: "Background research and web-learning jobs",
	Long: `Fieldwork submits research, crawl and swarm jobs to a running
fieldworkd server and polls their status.

Jobs run asynchronously: submitting returns a job id immediately, and
progress is observed via 'fieldwork jobs' or the --watch flag.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default FIELDWORK_SERVER_URL or http://localhost:8765)")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
