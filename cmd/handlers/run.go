package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: ingest, generate, images",
		Long: `Run every stage in order: ingest items from all sources, cluster the
recent window and generate articles, then attach hero images.

This is the command a scheduler invokes. Each stage is idempotent, so
overlapping or repeated runs are safe.

Examples:
  itriggr run`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runAll(cmd.Context()); err != nil {
				logger.Error("Pipeline run failed", err)
				os.Exit(1)
			}
		},
	}
}

func runAll(ctx context.Context) error {
	p, st, err := openPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := p.RunAll(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ Pipeline run complete\n")
	fmt.Printf("   Ingested:  %d stored, %d skipped\n", summary.Ingest.Stored, summary.Ingest.Skipped)
	fmt.Printf("   Generated: %d articles across %d clusters\n", summary.Generate.Generated, summary.Generate.Clusters)
	fmt.Printf("   Images:    %d created, %d failed\n", summary.Images.Created, summary.Images.Failed)
	return nil
}
