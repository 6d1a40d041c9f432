package handlers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewAskCmd creates the ask command for one-off questions
func NewAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about today's highlights",
		Example: `  headlines ask "What happened in sports today?"
  headlines ask who won the championship`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := a.answerer.Answer(cmd.Context(), question)
			if err != nil {
				return fmt.Errorf("failed to answer question: %w", err)
			}

			fmt.Println(answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range answer.Sources {
					fmt.Printf("  - %s [%s]\n", src.Title, src.Category)
				}
			}
			return nil
		},
	}
}
