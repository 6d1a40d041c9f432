package handlers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"headlines/internal/pipeline"
	"headlines/internal/tui"
)

// NewProcessCmd creates the process command that runs the daily pipeline
func NewProcessCmd() *cobra.Command {
	var opts pipeline.Options

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Classify, cluster and highlight the daily news",
		Long: `Process runs the full daily pipeline over the news CSV:

  • Embeds every article once
  • Assigns each article its nearest category
  • Groups near-duplicate coverage into clusters
  • Ranks articles and keeps the top highlights per category
  • Writes the classified and highlights CSVs
  • Replaces the highlights index and indexes every article

Examples:
  # Use the paths from the configuration
  headlines process

  # Process a different input file
  headlines process --news-csv ./data/news_2025-06-01.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.NewsCSV, "news-csv", "", "Input news CSV (default from config)")
	cmd.Flags().StringVar(&opts.ClassifiedCSV, "classified-csv", "", "Output CSV with every classified article (default from config)")
	cmd.Flags().StringVar(&opts.HighlightsCSV, "highlights-csv", "", "Output highlights CSV (default from config)")

	return cmd
}

func runProcess(ctx context.Context, opts pipeline.Options) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.pipeline.Process(ctx, opts)
	if err != nil {
		a.log.Error("Pipeline run failed", "error", err)
		return err
	}

	fmt.Printf("Processed %d articles in %s (%d clusters, %d unclustered)\n",
		result.Stats.Articles, result.Stats.ProcessingTime.Round(time.Millisecond), result.Stats.Clusters, result.Stats.Noise)

	names := make([]string, 0, len(result.CategoryCounts))
	for name := range result.CategoryCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-20s %d\n", name, result.CategoryCounts[name])
	}

	fmt.Println(tui.RenderHighlights(result.Highlights))
	return nil
}
