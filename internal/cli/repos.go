package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/api"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage tracked repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repos, pagination, err := apiClient.ListRepos(ctx, pageOptions())
		if err != nil {
			return fmt.Errorf("list repositories: %w", err)
		}

		if len(repos) == 0 {
			fmt.Println("No repositories tracked")
			return nil
		}

		fmt.Printf("%-40s %-10s %-20s %s\n", "REPOSITORY", "STATUS", "LANGUAGES", "BRANCH")
		fmt.Println(strings.Repeat("-", 88))
		for _, r := range repos {
			fmt.Printf("%-40s %-10s %-20s %s\n",
				r.FullName, r.Status, strings.Join(r.Languages, ","), r.DefaultBranch)
		}
		printPagination(pagination)
		return nil
	},
}

var reposSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the provider for repositories",
	Long: `Search the provider for repositories to import.

With a query argument, performs a single search. Without arguments, opens an
interactive search with debounced as-you-type results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return runRepoSearchUI()
		}

		ctx := context.Background()
		result, err := apiClient.SearchRepos(ctx, args[0], pageOptions())
		if err != nil {
			return fmt.Errorf("search repositories: %w", err)
		}

		printSuggestions(result.Suggestions)
		printPagination(&result.Pagination)
		return nil
	},
}

var reposImportCmd = &cobra.Command{
	Use:   "import <repo>...",
	Short: "Import repositories by full name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		result, err := apiClient.BulkImportRepos(ctx, args)
		if err != nil {
			return fmt.Errorf("bulk import: %w", err)
		}

		// Aggregate result: partial failure does not undo the imports that
		// already succeeded.
		fmt.Printf("Imported %d of %d repositories\n", result.Imported, result.Imported+result.Failed)
		if result.Failed > 0 {
			fmt.Printf("Failed: %d\n", result.Failed)
			for _, e := range result.Errors {
				fmt.Printf("  • %s\n", e)
			}
		}
		return nil
	},
}

var reposDetectCmd = &cobra.Command{
	Use:   "detect <repo>...",
	Short: "Detect source languages for repositories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		languages, err := apiClient.DetectLanguages(ctx, args)
		if err != nil {
			return fmt.Errorf("detect languages: %w", err)
		}

		for _, repo := range args {
			langs := languages[repo]
			if len(langs) == 0 {
				fmt.Printf("%-40s (none detected)\n", repo)
				continue
			}
			fmt.Printf("%-40s %s\n", repo, strings.Join(langs, ", "))
		}
		return nil
	},
}

var reposSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the repository list from the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.SyncRepos(context.Background()); err != nil {
			return fmt.Errorf("sync repositories: %w", err)
		}
		fmt.Println("Sync started")
		return nil
	},
}

var reposJobsCmd = &cobra.Command{
	Use:   "jobs <repo-id>",
	Short: "Show a repository's job history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		jobs, err := apiClient.RepoJobs(ctx, args[0])
		if err != nil {
			return fmt.Errorf("repo jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-12s %-14s %-12s %s\n", "ID", "TYPE", "STATUS", "STARTED")
		fmt.Println(strings.Repeat("-", 56))
		for _, j := range jobs {
			fmt.Printf("%-12s %-14s %-12s %s\n", j.ID, j.Type, j.Status, j.StartedAt.Format("15:04:05"))
		}
		return nil
	},
}

// Shared pagination flags.
var (
	flagPage    int
	flagPerPage int
)

func pageOptions() api.PageOptions {
	opts := api.PageOptions{}
	if flagPage > 0 {
		opts.Page = &flagPage
	}
	if flagPerPage > 0 {
		opts.PerPage = &flagPerPage
	}
	return opts
}

func printPagination(p *api.Pagination) {
	if p == nil || p.TotalPages <= 1 {
		return
	}
	fmt.Printf("\nPage %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
}

func printSuggestions(suggestions []api.RepoSuggestion) {
	if len(suggestions) == 0 {
		fmt.Println("No repositories found")
		return
	}
	for _, s := range suggestions {
		visibility := "public"
		if s.Private {
			visibility = "private"
		}
		desc := ""
		if s.Description != nil {
			desc = *s.Description
		}
		fmt.Printf("%-40s %-8s %s\n", s.FullName, visibility, desc)
	}
}

func init() {
	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposSearchCmd)
	reposCmd.AddCommand(reposImportCmd)
	reposCmd.AddCommand(reposDetectCmd)
	reposCmd.AddCommand(reposSyncCmd)
	reposCmd.AddCommand(reposJobsCmd)

	reposCmd.PersistentFlags().IntVar(&flagPage, "page", 0, "page number")
	reposCmd.PersistentFlags().IntVar(&flagPerPage, "per-page", 0, "items per page")

	rootCmd.AddCommand(reposCmd)
}
