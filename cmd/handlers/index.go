package handlers

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"headlines/internal/vectorstore"
)

// NewIndexCmd creates the index command that reloads the highlights index
func NewIndexCmd() *cobra.Command {
	var (
		path  string
		stats bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the highlights index from the highlights CSV",
		Long: `Index replaces the highlights collection with the contents of a
highlights CSV written by 'headlines process'. A missing file leaves the
highlights index empty.

With --stats the index is left alone and the document count of every
collection is printed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if stats {
				return printIndexStats(cmd.Context(), a.store)
			}

			n, err := a.pipeline.IndexHighlights(cmd.Context(), path)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d highlights\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "highlights-csv", "", "Highlights CSV to index (default from config)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Print the document count of every collection and exit")

	return cmd
}

func printIndexStats(ctx context.Context, store *vectorstore.Store) error {
	infos, err := store.Collections(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("Index is empty")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("  %-20s %d\n", info.Name, info.Documents)
	}
	return nil
}
