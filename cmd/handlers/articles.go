package handlers

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/spf13/cobra"
)

// NewArticlesCmd creates the articles inspection command
func NewArticlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "Inspect generated articles",
		Long: `Inspect the articles stored in the database.

Subcommands:
  list      List recent articles
  show      Show one article in full`,
	}

	cmd.AddCommand(newArticlesListCmd())
	cmd.AddCommand(newArticlesShowCmd())

	return cmd
}

func newArticlesListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent articles",
		Long: `List recently generated articles with their cluster key, source count,
model, and image status.

Examples:
  # List the last 20 articles
  itriggr articles list

  # List the last 50
  itriggr articles list --limit 50`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runArticlesList(cmd.Context(), limit); err != nil {
				logger.Error("Failed to list articles", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of articles to list")

	return cmd
}

func newArticlesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <article-id>",
		Short: "Show one article in full",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := runArticlesShow(cmd.Context(), args[0]); err != nil {
				logger.Error("Failed to show article", err)
				os.Exit(1)
			}
		},
	}
}

func runArticlesList(ctx context.Context, limit int) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	articles, err := st.ListRecentArticles(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list articles: %w", err)
	}

	if len(articles) == 0 {
		fmt.Println("No articles found")
		fmt.Println("💡 Run 'itriggr run' to ingest and generate")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLUSTER\tSOURCES\tMODEL\tIMAGE\tTITLE")
	for _, article := range articles {
		title := ellipsize(article.Title, 48)
		imageStatus := article.ImageStatus
		if imageStatus == "" {
			imageStatus = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			article.ID, article.ClusterKey, len(article.SourceRefs),
			article.ModelUsed, imageStatus, title)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	items, total, err := st.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store counts: %w", err)
	}
	fmt.Printf("\n%d articles total from %d ingested items\n", total, items)
	return nil
}

func runArticlesShow(ctx context.Context, id string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	article, err := st.GetArticle(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load article %s: %w", id, err)
	}

	fmt.Printf("\n📰 %s\n", article.Title)
	fmt.Printf("   ID:       %s\n", article.ID)
	fmt.Printf("   Cluster:  %s\n", article.ClusterKey)
	fmt.Printf("   Model:    %s (%d ms)\n", article.ModelUsed, article.LatencyMS)
	fmt.Printf("   Created:  %s\n", article.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("   Sources:  %d items\n", len(article.SourceRefs))
	if article.ImageStatus != "" {
		fmt.Printf("   Image:    %s", article.ImageStatus)
		if article.ImageError != "" {
			fmt.Printf(" (%s)", article.ImageError)
		}
		fmt.Println()
	}

	fmt.Printf("\n%s\n", article.Summary)

	if len(article.Bullets) > 0 {
		fmt.Println()
		for _, bullet := range article.Bullets {
			fmt.Printf("  • %s\n", bullet)
		}
	}

	if len(article.Facts) > 0 {
		fmt.Println("\nFacts:")
		for _, fact := range article.Facts {
			fmt.Printf("  - %s\n", fact.Text)
			if fact.EvidenceURL != "" {
				fmt.Printf("    %s\n", fact.EvidenceURL)
			}
		}
	}

	if len(article.EvidenceURLs) > 0 {
		fmt.Println("\nEvidence:")
		for _, url := range article.EvidenceURLs {
			fmt.Printf("  %s\n", url)
		}
	}
	return nil
}

// ellipsize shortens s to at most max characters, replacing the tail with
// "...". Counts runes, not bytes, so multi-byte titles stay valid UTF-8.
func ellipsize(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
