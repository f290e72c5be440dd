package generate

import (
	"context"
	"fmt"
)

// ShouldGenerate reports whether no article exists yet for the cluster key.
//
// This is the legacy generation gate: a read with no transactional guard,
// so two overlapping runs can both observe "not generated" and both write.
// The default pipeline instead relies on the store's conditional create
// (unique cluster_key index), which closes that race; this check remains
// only behind the generation.legacy_gate configuration flag.
func (g *Generator) ShouldGenerate(ctx context.Context, clusterKey string) (bool, error) {
	exists, err := g.store.HasArticleForCluster(ctx, clusterKey)
	if err != nil {
		return false, fmt.Errorf("failed to check existing article: %w", err)
	}
	return !exists, nil
}
