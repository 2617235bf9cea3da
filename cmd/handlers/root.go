/*
Copyright © 2026 Your Name

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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curio/internal/config"
	"curio/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached. Running
// the root command starts the worker loop.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "curio",
		Short: "Curio is a background worker that aggregates learning resources into daily feeds.",
		Long: `Curio ingests user-configured sources (blogs, feeds, paper listings),
extracts individual learning resources with LLM assistance, and generates
per-user daily recommendation feeds from vote history and vector retrieval.

Running curio with no subcommand starts the worker loop: periodic source
ingestion plus once-per-day feed generation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.curio.yaml)")

	rootCmd.AddCommand(NewIngestionCmd())
	rootCmd.AddCommand(NewFeedCmd())
	rootCmd.AddCommand(NewReindexCmd())
	rootCmd.AddCommand(NewStatusCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
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

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
}
