package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch items from configured sources and store new ones",
		Long: `Fetch headline and feed items from all configured sources and store
the ones not seen before.

Each item is keyed by a content address derived from its URL, so
re-running ingest never stores the same URL twice. A failing source is
logged and skipped; the rest of the batch continues.

Examples:
  # Ingest from NewsAPI and RSS feeds configured in .itriggr.yaml
  itriggr ingest`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runIngest(cmd.Context()); err != nil {
				logger.Error("Ingest failed", err)
				os.Exit(1)
			}
		},
	}
}

func runIngest(ctx context.Context) error {
	p, st, err := openPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := p.RunIngest(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n📥 Ingest complete\n")
	fmt.Printf("   Stored:  %d\n", summary.Stored)
	fmt.Printf("   Skipped: %d (already seen)\n", summary.Skipped)
	fmt.Printf("   Dropped: %d (missing title or URL)\n", summary.Dropped)
	return nil
}
