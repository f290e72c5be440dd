package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/Seci84/ITriggr/internal/config"
	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/spf13/cobra"
)

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	var windowHours int
	var prefixBits int
	var minClusterSize int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Cluster recent items and generate one article per new story",
		Long: `Group items ingested within the configured time window by similarity
fingerprint and generate a structured article for every cluster that
does not have one yet.

When the text backend is unavailable or returns unusable output, a
template article is synthesized from the cluster's source items instead,
so every cluster always ends the run with exactly one article.

Examples:
  # Generate articles for the current window
  itriggr generate

  # Widen the window and require at least two sources per story
  itriggr generate --window-hours 12 --min-cluster-size 2`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runGenerate(cmd.Context(), windowHours, prefixBits, minClusterSize); err != nil {
				logger.Error("Generation failed", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 0, "Override the clustering window in hours")
	cmd.Flags().IntVar(&prefixBits, "prefix-bits", 0, "Override the fingerprint prefix width (multiple of 4)")
	cmd.Flags().IntVar(&minClusterSize, "min-cluster-size", 0, "Override the minimum sources per cluster")

	return cmd
}

func runGenerate(ctx context.Context, windowHours, prefixBits, minClusterSize int) error {
	cfg := config.Get()
	if windowHours > 0 {
		cfg.Cluster.WindowHours = windowHours
	}
	if prefixBits > 0 {
		if prefixBits > 64 || prefixBits%4 != 0 {
			return fmt.Errorf("prefix-bits must be a multiple of 4 in (0, 64], got %d", prefixBits)
		}
		cfg.Cluster.PrefixBits = prefixBits
	}
	if minClusterSize > 0 {
		cfg.Cluster.MinClusterSize = minClusterSize
	}

	p, st, err := openPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := p.RunGenerate(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n📰 Generation complete\n")
	fmt.Printf("   Clusters:  %d\n", summary.Clusters)
	fmt.Printf("   Generated: %d\n", summary.Generated)
	fmt.Printf("   Skipped:   %d (already generated)\n", summary.Skipped)
	fmt.Printf("   Fallbacks: %d\n", summary.Fallbacks)
	if summary.Failed > 0 {
		fmt.Printf("   Failed:    %d\n", summary.Failed)
	}
	return nil
}
