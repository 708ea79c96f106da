package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/poll"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Inspect training scenarios and their splits",
}

var scenariosShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a scenario and its splits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		s, err := apiClient.GetScenario(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get scenario: %w", err)
		}

		fmt.Printf("Scenario: %s\n", s.Name)
		fmt.Printf("  ID: %s\n", s.ID)
		fmt.Printf("  Status: %s\n", s.Status)
		fmt.Printf("  Created: %s\n", s.CreatedAt.Format(time.RFC3339))

		if len(s.Splits) == 0 {
			fmt.Println("\nNo splits generated yet")
			return nil
		}
		fmt.Println("\nSplits:")
		for _, split := range s.Splits {
			fmt.Printf("  %-12s ratio=%.2f builds=%d formats=%s\n",
				split.Name, split.Ratio, split.BuildCount, strings.Join(split.Formats, ","))
		}
		return nil
	},
}

var scenariosSplitCmd = &cobra.Command{
	Use:   "split <id>",
	Short: "Generate dataset splits and watch progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]

		if err := apiClient.GenerateSplits(ctx, id); err != nil {
			return fmt.Errorf("generate splits: %w", err)
		}

		return RunProgress("Split generation", func(ctx context.Context) (poll.Snapshot, error) {
			status, err := apiClient.ScenarioStatus(ctx, id)
			if err != nil {
				return poll.Snapshot{}, err
			}
			snap := poll.Snapshot{Status: status.Status, Progress: status.Progress}
			if status.Error != nil {
				snap.Message = *status.Error
			}
			return snap, nil
		})
	},
}

var (
	flagSplitFormat string
	flagSplitOut    string
)

var scenariosDownloadCmd = &cobra.Command{
	Use:   "download <id> <split>",
	Short: "Download a split file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id, split := args[0], args[1]

		if flagSplitFormat != api.FormatParquet && flagSplitFormat != api.FormatCSV {
			return fmt.Errorf("unsupported format: %s", flagSplitFormat)
		}

		out := flagSplitOut
		if out == "" {
			out = fmt.Sprintf("%s-%s.%s", id, split, flagSplitFormat)
		}

		file, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()

		n, err := apiClient.DownloadSplit(ctx, id, split, flagSplitFormat, file)
		if err != nil {
			return fmt.Errorf("download split: %w", err)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", out, n)
		return nil
	},
}

var scenariosBuildsCmd = &cobra.Command{
	Use:   "builds <id>",
	Short: "List a scenario's ingested builds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		builds, pagination, err := apiClient.ListScenarioBuilds(ctx, args[0], pageOptions())
		if err != nil {
			return fmt.Errorf("list builds: %w", err)
		}

		if len(builds) == 0 {
			fmt.Println("No builds found")
			return nil
		}

		fmt.Printf("%-12s %-30s %-12s %-10s %8s\n", "ID", "REPOSITORY", "COMMIT", "OUTCOME", "SECONDS")
		fmt.Println(strings.Repeat("-", 78))
		for _, b := range builds {
			sha := b.CommitSHA
			if len(sha) > 10 {
				sha = sha[:10]
			}
			fmt.Printf("%-12s %-30s %-12s %-10s %8.1f\n", b.ID, b.RepoName, sha, b.Outcome, b.Duration)
		}
		printPagination(pagination)
		return nil
	},
}

func init() {
	scenariosDownloadCmd.Flags().StringVar(&flagSplitFormat, "format", api.FormatParquet, "file format (parquet or csv)")
	scenariosDownloadCmd.Flags().StringVar(&flagSplitOut, "out", "", "output path")

	scenariosBuildsCmd.Flags().IntVar(&flagPage, "page", 0, "page number")
	scenariosBuildsCmd.Flags().IntVar(&flagPerPage, "per-page", 0, "items per page")

	scenariosCmd.AddCommand(scenariosShowCmd)
	scenariosCmd.AddCommand(scenariosSplitCmd)
	scenariosCmd.AddCommand(scenariosDownloadCmd)
	scenariosCmd.AddCommand(scenariosBuildsCmd)

	rootCmd.AddCommand(scenariosCmd)
}
