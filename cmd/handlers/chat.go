package handlers

import (
	"github.com/spf13/cobra"

	"headlines/internal/tui"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat about today's highlights in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return tui.RunChat(cmd.Context(), a.answerer)
		},
	}
}
