package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/Seci84/ITriggr/internal/config"
	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/spf13/cobra"
)

// NewImagesCmd creates the images command
func NewImagesCmd() *cobra.Command {
	var resetFailed string
	var limit int

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Attach hero images to recent articles",
		Long: `Scan recent articles without a hero image and generate one for each,
up to the configured per-run limit.

Only one worker can hold an article's image slot at a time; a previous
failed attempt blocks further attempts until it is cleared with
--reset-failed.

Examples:
  # Generate missing hero images
  itriggr images

  # Clear a failed attempt so the next run retries it
  itriggr images --reset-failed 3f2a9c1b`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runImages(cmd.Context(), resetFailed, limit); err != nil {
				logger.Error("Image pass failed", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&resetFailed, "reset-failed", "", "Clear the failed image state of the given article ID instead of running")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Override the per-run article limit")

	return cmd
}

func runImages(ctx context.Context, resetFailed string, limit int) error {
	if limit > 0 {
		config.Get().Images.RunLimit = limit
	}

	p, st, err := openPipeline()
	if err != nil {
		return err
	}
	defer st.Close()

	if resetFailed != "" {
		if err := p.ResetFailedImage(ctx, resetFailed); err != nil {
			return fmt.Errorf("failed to reset image state for %s: %w", resetFailed, err)
		}
		fmt.Printf("🔄 Cleared failed image state for article %s\n", resetFailed)
		return nil
	}

	summary, err := p.RunImages(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n🖼️  Image pass complete\n")
	fmt.Printf("   Scanned: %d\n", summary.Scanned)
	fmt.Printf("   Created: %d\n", summary.Created)
	fmt.Printf("   Skipped: %d (already have images or slot held)\n", summary.Skipped)
	if summary.Failed > 0 {
		fmt.Printf("   Failed:  %d (use --reset-failed <article-id> to retry)\n", summary.Failed)
	}
	return nil
}
