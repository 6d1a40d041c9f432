package handlers

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"headlines/internal/core"
	"headlines/internal/dataset"
	"headlines/internal/tui"
)

// NewHighlightsCmd creates the highlights command that lists the current highlights
func NewHighlightsCmd() *cobra.Command {
	var (
		path     string
		category string
	)

	cmd := &cobra.Command{
		Use:   "highlights",
		Short: "Show the current highlights",
		Example: `  headlines highlights
  headlines highlights --category sports`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = appConfig.Data.HighlightsCSV
			}

			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no highlights at %s, run 'headlines process' first", path)
			}

			ds, err := dataset.LoadProcessed(path)
			if err != nil {
				return err
			}

			selected := ds.Articles
			if category != "" {
				category = strings.ToLower(strings.TrimSpace(category))
				selected = make([]core.Article, 0, len(ds.Articles))
				for _, a := range ds.Articles {
					if a.PredictedCategory == category {
						selected = append(selected, a)
					}
				}
			}

			fmt.Println(tui.RenderHighlights(selected))
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "highlights-csv", "", "Highlights CSV (default from config)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only show highlights of this category")

	return cmd
}
