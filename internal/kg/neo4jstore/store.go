package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
	"github.com/yungbote/kgchat-backend/internal/platform/neo4jdb"
)

var tracer = otel.Tracer("github.com/yungbote/kgchat-backend/internal/kg/neo4jstore")

// Store implements kg.Store over the health KG schema: (:Node {CUI, Name, Label}) joined by
// [:Relation {Type, PubMed_ID}]. Labels and relationship types are fixed in the query text;
// every caller-supplied value is a bind parameter.
type Store struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

var _ kg.Store = (*Store)(nil)

func New(client *neo4jdb.Client, log *logger.Logger) (*Store, error) {
	if client == nil || client.Driver == nil {
		return nil, errors.New("neo4jstore: client required")
	}
	if log == nil {
		return nil, errors.New("neo4jstore: logger required")
	}
	return &Store{client: client, log: log.With("component", "Neo4jStore")}, nil
}

const (
	cypherDirect = `
MATCH path = (a:Node {CUI: $a})-[:Relation]-(b:Node {CUI: $b})
RETURN path
LIMIT $limit`

	cypherBridge = `
MATCH path = (a:Node {CUI: $a})-[:Relation]-(m:Node)-[:Relation]-(b:Node {CUI: $b})
WHERE m <> a AND m <> b
RETURN path
LIMIT $limit`

	cypherNeighborhood = `
MATCH path = (a:Node {CUI: $id})-[:Relation]-(:Node)
RETURN path
LIMIT $limit`

	cypherTypedNeighborhood = `
MATCH path = (a:Node {CUI: $id})-[:Relation]-(b:Node)
WHERE toLower(trim(coalesce(b.Label, ''))) IN $labels
RETURN path
LIMIT $limit`

	cypherNeighborCategories = `
MATCH (a:Node {CUI: $id})-[:Relation]-(b:Node)
WITH b
LIMIT $limit
RETURN b.Label AS label`

	cypherRankedNeighbors = `
MATCH (h:Node)
WHERE toLower(coalesce(h.Name, h.name)) = toLower($head)
MATCH (h)-[r:Relation]-(t:Node)
WITH h, t, r,
     toUpper(coalesce(r.Type, type(r))) AS rtype,
     coalesce(t.Name, t.name) AS tname
WHERE ($whitelist = [] OR rtype IN $whitelist)
  AND NOT toLower(tname) IN $exclude
WITH h, t, tname, rtype, count(r) AS evidence
ORDER BY evidence DESC, rtype ASC, toLower(tname) ASC
LIMIT $limit
RETURN h.CUI AS head_id, coalesce(h.Name, h.name) AS head_name,
       t.CUI AS tail_id, tname AS tail_name, t.Label AS tail_label,
       rtype AS relation, evidence`

	cypherFindByName = `
MATCH (n:Node)
WHERE toLower(coalesce(n.Name, n.name)) = toLower($name)
RETURN n.CUI AS id, coalesce(n.Name, n.name) AS name, n.Label AS label
LIMIT $limit`
)

func (s *Store) DirectPaths(ctx context.Context, a, b string, limit int) ([]kg.Path, error) {
	recs, err := s.collect(ctx, "direct_paths", cypherDirect, map[string]any{
		"a": a, "b": b, "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return pathsFromRecords(recs), nil
}

func (s *Store) BridgePaths(ctx context.Context, a, b string, limit int) ([]kg.Path, error) {
	recs, err := s.collect(ctx, "bridge_paths", cypherBridge, map[string]any{
		"a": a, "b": b, "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return pathsFromRecords(recs), nil
}

func (s *Store) Neighborhood(ctx context.Context, id string, limit int) ([]kg.Path, error) {
	recs, err := s.collect(ctx, "neighborhood", cypherNeighborhood, map[string]any{
		"id": id, "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return pathsFromRecords(recs), nil
}

func (s *Store) TypedNeighborhood(ctx context.Context, id string, category kg.Category, limit int) ([]kg.Path, error) {
	recs, err := s.collect(ctx, "typed_neighborhood", cypherTypedNeighborhood, map[string]any{
		"id": id, "labels": kg.Labels(category), "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	return pathsFromRecords(recs), nil
}

func (s *Store) NeighborCategories(ctx context.Context, id string, limit int) ([]kg.Category, error) {
	recs, err := s.collect(ctx, "neighbor_categories", cypherNeighborCategories, map[string]any{
		"id": id, "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(recs))
	for _, rec := range recs {
		v, _ := rec.Get("label")
		labels = append(labels, anyString(v))
	}
	return distinctCategories(labels), nil
}

func (s *Store) RankedNeighbors(ctx context.Context, head string, q kg.NeighborQuery) ([]kg.NeighborRow, error) {
	whitelist := make([]string, 0, len(q.Whitelist))
	for _, w := range q.Whitelist {
		if w = strings.ToUpper(strings.TrimSpace(w)); w != "" {
			whitelist = append(whitelist, w)
		}
	}
	exclude := make([]string, 0, len(q.Exclude))
	for _, x := range q.Exclude {
		if x = strings.ToLower(strings.TrimSpace(x)); x != "" {
			exclude = append(exclude, x)
		}
	}
	recs, err := s.collect(ctx, "ranked_neighbors", cypherRankedNeighbors, map[string]any{
		"head":      head,
		"whitelist": whitelist,
		"exclude":   exclude,
		"limit":     int64(q.Limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]kg.NeighborRow, 0, len(recs))
	for _, rec := range recs {
		out = append(out, neighborRowFromRecord(rec))
	}
	return out, nil
}

func (s *Store) FindByName(ctx context.Context, name string, limit int) ([]kg.Node, error) {
	recs, err := s.collect(ctx, "find_by_name", cypherFindByName, map[string]any{
		"name": name, "limit": int64(limit),
	})
	if err != nil {
		return nil, err
	}
	out := make([]kg.Node, 0, len(recs))
	for _, rec := range recs {
		id, _ := rec.Get("id")
		nm, _ := rec.Get("name")
		label, _ := rec.Get("label")
		out = append(out, kg.Node{
			ID:       anyString(id),
			Name:     anyString(nm),
			Category: kg.ParseCategory(anyString(label)),
		})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4jstore ping: %w: %w", kg.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) collect(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, span := tracer.Start(ctx, "neo4jstore."+op)
	defer span.End()

	session := s.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		s.log.Warn("neo4j query failed", "op", op, "error", err)
		return nil, fmt.Errorf("neo4jstore %s: %w: %w", op, kg.ErrStoreUnavailable, err)
	}
	recs, _ := out.([]*neo4j.Record)
	span.SetAttributes(attribute.Int("kg.rows", len(recs)))
	return recs, nil
}
