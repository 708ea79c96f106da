package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/poll"
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Inspect commit security scans",
}

var flagScanTool string

var scansListCmd = &cobra.Command{
	Use:   "list <scenario-id>",
	Short: "List commit scans for a scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		opts := api.ListScansOptions{PageOptions: pageOptions()}
		if flagScanTool != "" {
			if flagScanTool != api.ScanToolSonarQube && flagScanTool != api.ScanToolTrivy {
				return fmt.Errorf("unknown tool: %s", flagScanTool)
			}
			opts.Tool = &flagScanTool
		}

		scans, pagination, err := apiClient.ListScans(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("list scans: %w", err)
		}

		if len(scans) == 0 {
			fmt.Println("No scans found")
			return nil
		}

		fmt.Printf("%-12s %-12s %-10s %-10s %8s  %s\n", "ID", "COMMIT", "TOOL", "STATUS", "ISSUES", "ERROR")
		fmt.Println(strings.Repeat("-", 70))
		for _, s := range scans {
			sha := s.CommitSHA
			if len(sha) > 10 {
				sha = sha[:10]
			}
			errMsg := ""
			if s.Error != nil {
				errMsg = *s.Error
			}
			fmt.Printf("%-12s %-12s %-10s %-10s %8d  %s\n", s.ID, sha, s.Tool, s.Status, s.IssuesFound, errMsg)
		}
		printPagination(pagination)
		return nil
	},
}

var scansRetryCmd = &cobra.Command{
	Use:   "retry <scan-id>",
	Short: "Re-run a failed scan and watch progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]

		if err := apiClient.RetryScan(ctx, id); err != nil {
			return fmt.Errorf("retry scan: %w", err)
		}

		return RunProgress("Scan", func(ctx context.Context) (poll.Snapshot, error) {
			progress, err := apiClient.GetScanProgress(ctx, id)
			if err != nil {
				return poll.Snapshot{}, err
			}
			snap := poll.Snapshot{Status: progress.Status, Progress: progress.Progress}
			if progress.Error != nil {
				snap.Message = *progress.Error
			}
			return snap, nil
		})
	},
}

func init() {
	scansListCmd.Flags().StringVar(&flagScanTool, "tool", "", "filter by tool (sonarqube or trivy)")
	scansListCmd.Flags().IntVar(&flagPage, "page", 0, "page number")
	scansListCmd.Flags().IntVar(&flagPerPage, "per-page", 0, "items per page")

	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansRetryCmd)

	rootCmd.AddCommand(scansCmd)
}
