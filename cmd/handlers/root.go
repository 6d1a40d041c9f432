/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"headlines/internal/config"
	"headlines/internal/logger"
)

var (
	cfgFile   string
	appConfig *config.Config
	appLogger *slog.Logger
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "headlines",
		Short: "Headlines classifies, de-duplicates and highlights the daily news.",
		Long: `Headlines turns a daily news CSV into a short list of highlights.

Every article is embedded, assigned the nearest category, grouped with its
near-duplicates and ranked. The highlights are indexed so questions about
today's news can be answered from them.

Typical usage:
  headlines process                 # run the daily pipeline
  headlines highlights              # show today's highlights
  headlines ask "what happened in sports?"
  headlines chat                    # interactive chat
  headlines serve                   # HTTP API`,
		SilenceUsage: true,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.headlines.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewProcessCmd())
	rootCmd.AddCommand(NewIndexCmd())
	rootCmd.AddCommand(NewAskCmd())
	rootCmd.AddCommand(NewChatCmd())
	rootCmd.AddCommand(NewHighlightsCmd())
	rootCmd.AddCommand(NewServeCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	appConfig = cfg
	appLogger = logger.Setup(cfg.Logging)

	// Show which config file is being used (if any)
	if cfg.App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", cfg.App.ConfigFile)
	}
}
