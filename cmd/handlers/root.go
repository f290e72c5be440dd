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
	"fmt"
	"os"

	"github.com/Seci84/ITriggr/internal/config"
	"github.com/Seci84/ITriggr/internal/pipeline"
	"github.com/Seci84/ITriggr/internal/store"
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "itriggr",
		Short: "ITriggr collects news items, clusters duplicates, and generates one article per story.",
		Long: `ITriggr is a batch news pipeline. It ingests items from NewsAPI and
RSS feeds, deduplicates exact URL repeats, groups near-duplicate reports
of the same story by similarity fingerprint, and generates exactly one
structured article per story cluster, optionally with a hero image.

Each stage is idempotent: re-running a stage never produces duplicate
items or duplicate articles.`,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.itriggr.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewImagesCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewArticlesCmd())

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
	_, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the store under the configured data directory. The
// caller owns closing it.
func openStore() (*store.Store, error) {
	cfg := config.Get()

	st, err := store.NewStore(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store in %s: %w", cfg.App.DataDir, err)
	}
	return st, nil
}

// openPipeline opens the store and assembles the pipeline around it. The
// caller owns closing the returned store.
func openPipeline() (*pipeline.Pipeline, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(config.Get(), st), st, nil
}
