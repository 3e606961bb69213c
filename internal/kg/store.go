package kg

import "context"

// Store is the read-only query capability over the knowledge graph. Every method is bounded by
// its limit argument; a query matching nothing returns an empty slice and a nil error.
type Store interface {
	// DirectPaths returns 1-hop paths between a and b.
	DirectPaths(ctx context.Context, a, b string, limit int) ([]Path, error)
	// BridgePaths returns 2-hop paths a - m - b through any bridge node m.
	BridgePaths(ctx context.Context, a, b string, limit int) ([]Path, error)
	// Neighborhood returns 1-hop paths from id to any neighbour.
	Neighborhood(ctx context.Context, id string, limit int) ([]Path, error)
	// TypedNeighborhood returns 1-hop paths from id to neighbours of the given category.
	TypedNeighborhood(ctx context.Context, id string, category Category, limit int) ([]Path, error)
	// NeighborCategories returns the distinct categories among the first limit neighbours of id,
	// in first-seen order.
	NeighborCategories(ctx context.Context, id string, limit int) ([]Category, error)
	// RankedNeighbors aggregates the neighbours of the node named head by (tail, relation).
	RankedNeighbors(ctx context.Context, head string, q NeighborQuery) ([]NeighborRow, error)
	// FindByName matches node names case-insensitively.
	FindByName(ctx context.Context, name string, limit int) ([]Node, error)
	Ping(ctx context.Context) error
}
