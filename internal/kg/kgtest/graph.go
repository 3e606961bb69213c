// Package kgtest provides an in-memory kg.Store for tests.
package kgtest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/kgchat-backend/internal/kg"
)

type edge struct {
	a, b     string
	typ      string
	evidence string
}

// Graph is an undirected in-memory graph. Queries walk edges in insertion order.
type Graph struct {
	mu    sync.Mutex
	nodes map[string]kg.Node
	edges []edge

	// Err, when set, is returned by every query wrapped in kg.ErrStoreUnavailable.
	Err   error
	Calls map[string]int
}

func New() *Graph {
	return &Graph{nodes: make(map[string]kg.Node), Calls: make(map[string]int)}
}

func (g *Graph) AddNode(id, name string, category kg.Category) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = kg.Node{ID: id, Name: name, Category: category}
	return g
}

func (g *Graph) AddEdge(a, b, typ, evidence string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, edge{a: a, b: b, typ: typ, evidence: evidence})
	return g
}

func (g *Graph) begin(op string) error {
	g.Calls[op]++
	if g.Err != nil {
		return wrap(g.Err)
	}
	return nil
}

func wrap(err error) error {
	return &storeError{err: err}
}

type storeError struct{ err error }

func (e *storeError) Error() string { return "kgtest: " + e.err.Error() }
func (e *storeError) Unwrap() []error {
	return []error{kg.ErrStoreUnavailable, e.err}
}

func (g *Graph) rel(e edge, from string) kg.Relation {
	to := e.b
	if from == e.b {
		to = e.a
	}
	return kg.Relation{SourceID: from, TargetID: to, Type: e.typ, Evidence: e.evidence}
}

func (g *Graph) other(e edge, id string) (string, bool) {
	switch id {
	case e.a:
		return e.b, true
	case e.b:
		return e.a, true
	}
	return "", false
}

func (g *Graph) DirectPaths(_ context.Context, a, b string, limit int) ([]kg.Path, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("DirectPaths"); err != nil {
		return nil, err
	}
	var out []kg.Path
	for _, e := range g.edges {
		if len(out) >= limit {
			break
		}
		if o, ok := g.other(e, a); ok && o == b {
			out = append(out, kg.Path{
				Nodes:     []kg.Node{g.nodes[a], g.nodes[b]},
				Relations: []kg.Relation{g.rel(e, a)},
			})
		}
	}
	return out, nil
}

func (g *Graph) BridgePaths(_ context.Context, a, b string, limit int) ([]kg.Path, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("BridgePaths"); err != nil {
		return nil, err
	}
	var out []kg.Path
	for _, e1 := range g.edges {
		m, ok := g.other(e1, a)
		if !ok || m == a || m == b {
			continue
		}
		for _, e2 := range g.edges {
			if len(out) >= limit {
				return out, nil
			}
			if o, ok := g.other(e2, m); ok && o == b {
				out = append(out, kg.Path{
					Nodes:     []kg.Node{g.nodes[a], g.nodes[m], g.nodes[b]},
					Relations: []kg.Relation{g.rel(e1, a), g.rel(e2, m)},
				})
			}
		}
	}
	return out, nil
}

func (g *Graph) Neighborhood(_ context.Context, id string, limit int) ([]kg.Path, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("Neighborhood"); err != nil {
		return nil, err
	}
	return g.neighbors(id, "", limit), nil
}

func (g *Graph) TypedNeighborhood(_ context.Context, id string, category kg.Category, limit int) ([]kg.Path, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("TypedNeighborhood"); err != nil {
		return nil, err
	}
	return g.neighbors(id, category, limit), nil
}

func (g *Graph) neighbors(id string, category kg.Category, limit int) []kg.Path {
	var out []kg.Path
	for _, e := range g.edges {
		if len(out) >= limit {
			break
		}
		o, ok := g.other(e, id)
		if !ok {
			continue
		}
		if category != "" && g.nodes[o].Category != category {
			continue
		}
		out = append(out, kg.Path{
			Nodes:     []kg.Node{g.nodes[id], g.nodes[o]},
			Relations: []kg.Relation{g.rel(e, id)},
		})
	}
	return out
}

func (g *Graph) NeighborCategories(_ context.Context, id string, limit int) ([]kg.Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("NeighborCategories"); err != nil {
		return nil, err
	}
	var out []kg.Category
	seen := map[kg.Category]bool{}
	for _, p := range g.neighbors(id, "", limit) {
		c := p.Nodes[1].Category
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *Graph) RankedNeighbors(_ context.Context, head string, q kg.NeighborQuery) ([]kg.NeighborRow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("RankedNeighbors"); err != nil {
		return nil, err
	}

	var headID string
	for id, n := range g.nodes {
		if strings.EqualFold(n.Name, head) {
			headID = id
			break
		}
	}
	if headID == "" {
		return nil, nil
	}

	type key struct{ tail, rel string }
	counts := map[key]int{}
	var order []key
	for _, e := range g.edges {
		o, ok := g.other(e, headID)
		if !ok {
			continue
		}
		if len(q.Whitelist) > 0 && !containsFold(q.Whitelist, e.typ) {
			continue
		}
		if containsFold(q.Exclude, g.nodes[o].Name) {
			continue
		}
		k := key{tail: o, rel: e.typ}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	rows := make([]kg.NeighborRow, 0, len(order))
	for _, k := range order {
		h, t := g.nodes[headID], g.nodes[k.tail]
		rows = append(rows, kg.NeighborRow{
			HeadID: h.ID, HeadName: h.Name,
			TailID: t.ID, TailName: t.Name, TailCategory: t.Category,
			Relation: k.rel, Evidence: counts[k],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Evidence != rows[j].Evidence {
			return rows[i].Evidence > rows[j].Evidence
		}
		if rows[i].Relation != rows[j].Relation {
			return rows[i].Relation < rows[j].Relation
		}
		return rows[i].TailName < rows[j].TailName
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (g *Graph) FindByName(_ context.Context, name string, limit int) ([]kg.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin("FindByName"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []kg.Node
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if strings.EqualFold(strings.TrimSpace(g.nodes[id].Name), strings.TrimSpace(name)) {
			out = append(out, g.nodes[id])
		}
	}
	return out, nil
}

func (g *Graph) Ping(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.begin("Ping")
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
