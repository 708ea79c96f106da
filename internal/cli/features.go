package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildguard/buildguard-cli/internal/api"
	"github.com/buildguard/buildguard-cli/internal/dag"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Inspect the feature catalog and DAG",
}

var flagActiveOnly bool

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog features",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		opts := api.ListFeaturesOptions{}
		if flagActiveOnly {
			opts.ActiveOnly = &flagActiveOnly
		}

		features, err := apiClient.ListFeatures(ctx, opts)
		if err != nil {
			return fmt.Errorf("list features: %w", err)
		}

		if len(features) == 0 {
			fmt.Println("No features found")
			return nil
		}

		fmt.Printf("%-24s %-28s %-8s %s\n", "ID", "NAME", "ACTIVE", "NODE")
		fmt.Println(strings.Repeat("-", 76))
		for _, f := range features {
			fmt.Printf("%-24s %-28s %-8t %s\n", f.ID, f.Name, f.Active, f.Node)
		}
		return nil
	},
}

var featuresDagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Show the feature DAG topology",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		d, err := apiClient.GetFeatureDAG(ctx)
		if err != nil {
			return fmt.Errorf("fetch DAG: %w", err)
		}

		fmt.Printf("%d nodes, %d features\n\n", len(d.Nodes), d.TotalFeatures)
		for _, level := range d.ExecutionLevels {
			fmt.Printf("Level %d:\n", level.Level)
			for _, nodeID := range level.Nodes {
				label := nodeID
				for _, n := range d.Nodes {
					if n.ID == nodeID {
						label = fmt.Sprintf("%s (%s)", n.Label, strings.Join(n.Features, ", "))
						break
					}
				}
				fmt.Printf("  %s\n", label)
			}
		}
		return nil
	},
}

var flagPlanFeatures []string

var featuresPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the execution plan for a feature selection",
	Long: `Show which DAG nodes a feature selection requires and the ordered
execution levels the backend would run. Levels without an active node are
omitted; level order is the backend's precomputed topological ordering.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(flagPlanFeatures) == 0 {
			return fmt.Errorf("pass at least one feature id via --features")
		}
		ctx := context.Background()

		features, err := apiClient.ListFeatures(ctx, api.ListFeaturesOptions{})
		if err != nil {
			return fmt.Errorf("list features: %w", err)
		}
		d, err := apiClient.GetFeatureDAG(ctx)
		if err != nil {
			return fmt.Errorf("fetch DAG: %w", err)
		}

		catalog := dag.NewCatalog(features)
		selection := dag.NewSelection(flagPlanFeatures...)

		fmt.Printf("Selected features: %s\n", strings.Join(selection.Names(catalog), ", "))

		active := dag.ActiveNodes(d, catalog, selection)
		plan := dag.ExecutionPlan(d, active)
		if len(plan) == 0 {
			fmt.Println("No active nodes for this selection")
			return nil
		}

		fmt.Printf("\nExecution plan (%d active nodes):\n", len(active))
		for i, level := range plan {
			fmt.Printf("  Step %d (level %d): %s\n", i+1, level.Level, strings.Join(level.Nodes, ", "))
		}
		return nil
	},
}

var featuresTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List feature templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := apiClient.ListFeatureTemplates(context.Background())
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}

		if len(templates) == 0 {
			fmt.Println("No templates found")
			return nil
		}
		for _, t := range templates {
			fmt.Printf("%-24s %d features\n", t.Name, len(t.FeatureIDs))
		}
		return nil
	},
}

func init() {
	featuresListCmd.Flags().BoolVar(&flagActiveOnly, "active", false, "only active features")
	featuresPlanCmd.Flags().StringSliceVar(&flagPlanFeatures, "features", nil, "feature ids to plan for")

	featuresCmd.AddCommand(featuresListCmd)
	featuresCmd.AddCommand(featuresDagCmd)
	featuresCmd.AddCommand(featuresPlanCmd)
	featuresCmd.AddCommand(featuresTemplatesCmd)

	rootCmd.AddCommand(featuresCmd)
}
