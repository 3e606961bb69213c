package subgraph

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/yungbote/kgchat-backend/internal/subgraph")

// Tier names the query that produced paths for a pair.
type Tier string

const (
	TierNone         Tier = ""
	TierDirect       Tier = "direct"
	TierBridge       Tier = "bridge"
	TierNeighborhood Tier = "neighborhood"
	TierTyped        Tier = "typed"
)

type Builder struct {
	store  kg.Store
	limits config.SubgraphConfig
	log    *logger.Logger
}

func NewBuilder(store kg.Store, limits config.SubgraphConfig, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.NewNop()
	}
	if limits.DirectLimit <= 0 {
		limits.DirectLimit = 20
	}
	if limits.BridgeLimit <= 0 {
		limits.BridgeLimit = 10
	}
	if limits.NeighborhoodLimit <= 0 {
		limits.NeighborhoodLimit = 20
	}
	return &Builder{store: store, limits: limits, log: log.With("component", "SubgraphBuilder")}
}

// Pair merges the direct paths between a and b, or the two-hop bridges when there are none.
// Identical ids fall back to the single-entity neighbourhood.
func (b *Builder) Pair(ctx context.Context, p *Payload, a, c string) (Tier, error) {
	if a == c {
		return b.Single(ctx, p, a)
	}

	ctx, span := tracer.Start(ctx, "subgraph.Pair")
	defer span.End()

	paths, err := b.store.DirectPaths(ctx, a, c, b.limits.DirectLimit)
	if err != nil {
		return TierNone, err
	}
	if len(paths) > 0 {
		p.Merge(paths)
		span.SetAttributes(attribute.String("subgraph.tier", string(TierDirect)), attribute.Int("subgraph.paths", len(paths)))
		return TierDirect, nil
	}

	paths, err = b.store.BridgePaths(ctx, a, c, b.limits.BridgeLimit)
	if err != nil {
		return TierNone, err
	}
	if len(paths) > 0 {
		p.Merge(paths)
		span.SetAttributes(attribute.String("subgraph.tier", string(TierBridge)), attribute.Int("subgraph.paths", len(paths)))
		return TierBridge, nil
	}

	b.log.Debug("no path between pair", "a", a, "b", c)
	return TierNone, nil
}

// Single merges the 1-hop neighbourhood of id.
func (b *Builder) Single(ctx context.Context, p *Payload, id string) (Tier, error) {
	ctx, span := tracer.Start(ctx, "subgraph.Single")
	defer span.End()

	paths, err := b.store.Neighborhood(ctx, id, b.limits.NeighborhoodLimit)
	if err != nil {
		return TierNone, err
	}
	span.SetAttributes(attribute.Int("subgraph.paths", len(paths)))
	if len(paths) == 0 {
		return TierNone, nil
	}
	p.Merge(paths)
	return TierNeighborhood, nil
}

// Typed merges the neighbours of id that carry category.
func (b *Builder) Typed(ctx context.Context, p *Payload, id string, category kg.Category) (Tier, error) {
	ctx, span := tracer.Start(ctx, "subgraph.Typed")
	defer span.End()

	paths, err := b.store.TypedNeighborhood(ctx, id, category, b.limits.NeighborhoodLimit)
	if err != nil {
		return TierNone, err
	}
	span.SetAttributes(attribute.String("subgraph.category", string(category)), attribute.Int("subgraph.paths", len(paths)))
	if len(paths) == 0 {
		return TierNone, nil
	}
	p.Merge(paths)
	return TierTyped, nil
}
