package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/poll"
	"github.com/buildguard/buildguard-cli/internal/repoconf"
	"github.com/buildguard/buildguard-cli/internal/wizard"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Manage CSV build sources",
}

var (
	flagUploadFile string
	flagUploadName string
	flagUploadMap  map[string]string
	flagRepos      []string
	flagLanguages  []string
	flagFrameworks []string
	flagFeatures   []string
	flagTemplate   string
)

var datasetsUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload and validate a CSV build source",
	Long: `Run the full build-source setup flow: upload a CSV, map its columns
to backend fields, configure repositories and features, then watch the
validation job.

Examples:
  buildguard datasets upload --file builds.csv \
    --map build_id=build_id --map repo_name=repo \
    --repo acme/api --repo acme/web \
    --lang go,python --features f_duration,f_flaky_rate`,
	RunE: runDatasetUpload,
}

func runDatasetUpload(cmd *cobra.Command, args []string) error {
	if flagUploadFile == "" {
		return fmt.Errorf("--file is required")
	}
	if len(flagRepos) == 0 {
		return fmt.Errorf("pass at least one --repo")
	}

	ctx := context.Background()
	name := flagUploadName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(flagUploadFile), filepath.Ext(flagUploadFile))
	}

	file, err := os.Open(flagUploadFile)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	sess := wizard.NewSession(apiClient, logger)
	defer sess.Close()

	// Step 1: upload and map columns.
	if err := sess.Upload(ctx, name, filepath.Base(flagUploadFile), file); err != nil {
		return err
	}
	fmt.Printf("Uploaded %s (columns: %s)\n", name, strings.Join(sess.Columns(), ", "))

	for field, column := range flagUploadMap {
		if err := sess.MapColumn(field, column); err != nil {
			return err
		}
	}
	if err := sess.ProceedToConfigure(ctx); err != nil {
		return err
	}

	// Step 2: repos, languages, frameworks, features.
	for _, repo := range flagRepos {
		sess.Repos().Toggle(repo)
	}
	if len(flagLanguages) > 0 {
		sess.Repos().ApplyToAll(repoconf.FieldSourceLanguages, flagLanguages)
	}
	if len(flagFrameworks) > 0 {
		sess.Repos().ApplyToAll(repoconf.FieldTestFrameworks, flagFrameworks)
	}
	for _, id := range flagFeatures {
		sess.Features().Add(id)
	}
	if flagTemplate != "" {
		if err := applyTemplate(ctx, sess, flagTemplate); err != nil {
			return err
		}
	}

	// Step 3: validate. The session owns the poll; the progress UI just
	// renders the session's snapshot so the resource is polled exactly once.
	if err := sess.ProceedToValidate(ctx); err != nil {
		return err
	}
	fmt.Printf("Validation started for build source %s\n", sess.SourceID())

	if err := RunProgress("Validation", sessionFetcher(sess)); err != nil {
		return err
	}
	if msg := sess.Err(); msg != "" {
		return fmt.Errorf("%s", msg)
	}

	stats := sess.Stats()
	fmt.Printf("Validated %d repos (%d valid, %d invalid)\n",
		stats.TotalRepos, stats.ValidRepos, stats.InvalidRepos)
	return nil
}

func applyTemplate(ctx context.Context, sess *wizard.Session, name string) error {
	templates, err := apiClient.ListFeatureTemplates(ctx)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	for _, t := range templates {
		if t.Name == name {
			sess.Features().ApplyTemplate(t)
			return nil
		}
	}
	return fmt.Errorf("template not found: %s", name)
}

// sessionFetcher adapts a wizard session's local snapshot for the progress
// UI without issuing any extra network calls.
func sessionFetcher(sess *wizard.Session) statusFetcher {
	return func(ctx context.Context) (poll.Snapshot, error) {
		stats := sess.Stats()
		snap := poll.Snapshot{Status: stats.Status, Progress: stats.Progress}
		if stats.Error != nil {
			snap.Message = *stats.Error
		}
		return snap, nil
	}
}

var datasetsResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume an incomplete build-source setup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		src, err := apiClient.GetBuildSource(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get build source: %w", err)
		}

		sess := wizard.NewSession(apiClient, logger)
		defer sess.Close()
		sess.Resume(src)

		fmt.Printf("Build source %s resumed at step %d (%s)\n", src.ID, sess.Step(), sess.Step())
		if sess.Step() != wizard.StepValidate {
			fmt.Println("Finish setup with 'buildguard datasets upload' flags or the API")
			return nil
		}

		sess.WatchValidation()
		if err := RunProgress("Validation", sessionFetcher(sess)); err != nil {
			return err
		}
		if msg := sess.Err(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return nil
	},
}

var datasetsStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a build source and its validation state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		src, err := apiClient.GetBuildSource(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get build source: %w", err)
		}

		fmt.Printf("Build source: %s\n", src.Name)
		fmt.Printf("  ID: %s\n", src.ID)
		fmt.Printf("  Status: %s\n", src.Status)
		fmt.Printf("  Setup step: %d\n", src.SetupStep)
		fmt.Printf("  Rows: %d\n", src.TotalRows)

		stats, err := apiClient.ValidationStatus(ctx, src.ID)
		if err != nil {
			logger.Debug("no validation status", "error", err)
			return nil
		}
		fmt.Printf("\nValidation: %s (%d%%)\n", stats.Status, stats.Progress)
		fmt.Printf("  Repos: %d total, %d valid, %d invalid\n",
			stats.TotalRepos, stats.ValidRepos, stats.InvalidRepos)
		if stats.Error != nil {
			fmt.Printf("  Error: %s\n", *stats.Error)
		}
		return nil
	},
}

var datasetsValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Start validation for a configured build source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		id := args[0]

		if err := apiClient.StartValidation(ctx, id); err != nil {
			return fmt.Errorf("start validation: %w", err)
		}

		return RunProgress("Validation", validationFetcher(id))
	},
}

var datasetsRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Retry a failed validation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if err := apiClient.RetryValidation(ctx, args[0]); err != nil {
			return fmt.Errorf("retry validation: %w", err)
		}

		return RunProgress("Validation", validationFetcher(args[0]))
	},
}

// validationFetcher polls the backend directly, for commands that run outside
// a wizard session.
func validationFetcher(id string) statusFetcher {
	return func(ctx context.Context) (poll.Snapshot, error) {
		stats, err := apiClient.ValidationStatus(ctx, id)
		if err != nil {
			return poll.Snapshot{}, err
		}
		snap := poll.Snapshot{Status: stats.Status, Progress: stats.Progress}
		if stats.Error != nil {
			snap.Message = *stats.Error
		}
		return snap, nil
	}
}

var datasetsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Request validation cancellation (best effort)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.CancelValidation(context.Background(), args[0]); err != nil {
			return fmt.Errorf("cancel validation: %w", err)
		}
		fmt.Println("Cancellation requested")
		return nil
	},
}

var datasetsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a build source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.DeleteBuildSource(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete build source: %w", err)
		}
		fmt.Println("Deleted")
		return nil
	},
}

var datasetsStatsCmd = &cobra.Command{
	Use:   "repo-stats <id>",
	Short: "Show per-repo ingestion stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		stats, pagination, err := apiClient.ListRepoBuildStats(ctx, args[0], pageOptions())
		if err != nil {
			return fmt.Errorf("repo stats: %w", err)
		}

		if len(stats) == 0 {
			fmt.Println("No stats found")
			return nil
		}

		fmt.Printf("%-40s %-10s %8s %8s %8s\n", "REPOSITORY", "STATUS", "TOTAL", "VALID", "FAILED")
		fmt.Println(strings.Repeat("-", 80))
		for _, s := range stats {
			fmt.Printf("%-40s %-10s %8d %8d %8d\n",
				s.RepoFullName, s.Status, s.TotalBuilds, s.ValidBuilds, s.FailedBuilds)
		}
		printPagination(pagination)
		return nil
	},
}

func init() {
	datasetsUploadCmd.Flags().StringVar(&flagUploadFile, "file", "", "CSV file to upload")
	datasetsUploadCmd.Flags().StringVar(&flagUploadName, "name", "", "build source name (default: file name)")
	datasetsUploadCmd.Flags().StringToStringVar(&flagUploadMap, "map", nil, "field=column mapping (repeatable)")
	datasetsUploadCmd.Flags().StringArrayVar(&flagRepos, "repo", nil, "repository to include (repeatable)")
	datasetsUploadCmd.Flags().StringSliceVar(&flagLanguages, "lang", nil, "source languages applied to all repos")
	datasetsUploadCmd.Flags().StringSliceVar(&flagFrameworks, "frameworks", nil, "test frameworks applied to all repos")
	datasetsUploadCmd.Flags().StringSliceVar(&flagFeatures, "features", nil, "feature ids to extract")
	datasetsUploadCmd.Flags().StringVar(&flagTemplate, "template", "", "feature template to apply")

	datasetsStatsCmd.Flags().IntVar(&flagPage, "page", 0, "page number")
	datasetsStatsCmd.Flags().IntVar(&flagPerPage, "per-page", 0, "items per page")

	datasetsCmd.AddCommand(datasetsUploadCmd)
	datasetsCmd.AddCommand(datasetsResumeCmd)
	datasetsCmd.AddCommand(datasetsStatusCmd)
	datasetsCmd.AddCommand(datasetsValidateCmd)
	datasetsCmd.AddCommand(datasetsRetryCmd)
	datasetsCmd.AddCommand(datasetsCancelCmd)
	datasetsCmd.AddCommand(datasetsDeleteCmd)
	datasetsCmd.AddCommand(datasetsStatsCmd)

	rootCmd.AddCommand(datasetsCmd)
}
