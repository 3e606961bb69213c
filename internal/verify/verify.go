// Package verify checks (head, relation, tail) claims against the graph by node name. Names the
// graph does not hold verbatim fall back to the resolver's lookup mode.
package verify

import (
	"context"
	"sort"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
	"github.com/yungbote/kgchat-backend/internal/relation"
	"github.com/yungbote/kgchat-backend/internal/resolver"
)

type Status string

const (
	StatusSupported  Status = "supported"
	StatusRelevant   Status = "relevant"
	StatusUnsure     Status = "unsure"
	StatusIncomplete Status = "incomplete"
)

const (
	HintSolid   = "solid"
	HintWeak    = "weak"
	HintMissing = "missing"
)

const (
	maxPapers   = 50
	nameLimit   = 5
	directLimit = 200
	bridgeLimit = 25
)

type Resolved struct {
	Head   string `json:"head,omitempty"`
	Tail   string `json:"tail,omitempty"`
	AltRel string `json:"alt_rel,omitempty"`
	Bridge string `json:"bridge,omitempty"`
}

type Result struct {
	Head     string   `json:"head"`
	Relation string   `json:"relation"`
	Tail     string   `json:"tail"`
	RelNorm  string   `json:"rel_norm"`
	Status   Status   `json:"status"`
	Count    int      `json:"count"`
	Papers   []string `json:"papers"`
	UIHint   string   `json:"ui_hint"`
	Resolved Resolved `json:"resolved"`
}

// NameLookup is the embedding fallback for names FindByName misses.
type NameLookup interface {
	Resolve(ctx context.Context, mentions []string, mode resolver.Mode) ([]resolver.Match, error)
}

type Verifier struct {
	graph  kg.Store
	lookup NameLookup
	log    *logger.Logger
}

// New builds a Verifier. lookup may be nil, in which case only exact graph names resolve.
func New(graph kg.Store, lookup NameLookup, log *logger.Logger) *Verifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Verifier{graph: graph, lookup: lookup, log: log.With("component", "Verifier")}
}

// Verify returns one result per triple. Incomplete triples are marked per item; a store
// failure aborts the batch.
func (v *Verifier) Verify(ctx context.Context, triples []kg.Triple) ([]Result, error) {
	out := make([]Result, 0, len(triples))
	for _, t := range triples {
		res, err := v.one(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (v *Verifier) one(ctx context.Context, t kg.Triple) (Result, error) {
	res := Result{
		Head:     strings.TrimSpace(t.Head),
		Relation: strings.TrimSpace(t.Relation),
		Tail:     strings.TrimSpace(t.Tail),
		Papers:   []string{},
	}
	res.RelNorm = relation.Normalize(res.Relation)
	if !t.Complete() {
		res.Status, res.UIHint = StatusIncomplete, HintMissing
		return res, nil
	}
	res.Resolved = Resolved{Head: res.Head, Tail: res.Tail}

	h, hok, err := v.node(ctx, res.Head)
	if err != nil {
		return Result{}, err
	}
	tl, tok, err := v.node(ctx, res.Tail)
	if err != nil {
		return Result{}, err
	}
	if !hok || !tok {
		res.Status, res.UIHint = StatusUnsure, HintMissing
		return res, nil
	}
	res.Resolved.Head, res.Resolved.Tail = h.Name, tl.Name

	paths, err := v.graph.DirectPaths(ctx, h.ID, tl.ID, directLimit)
	if err != nil {
		return Result{}, err
	}
	if groups := groupByType(paths); len(groups) > 0 {
		best := groups[0]
		status, hint := StatusRelevant, HintWeak
		for _, g := range groups {
			if g.typ == res.RelNorm {
				best, status, hint = g, StatusSupported, HintSolid
				break
			}
		}
		res.Status, res.UIHint = status, hint
		res.Count = best.count
		res.Papers = best.papers
		if status == StatusRelevant {
			res.Resolved.AltRel = best.typ
		}
		return res, nil
	}

	paths, err = v.graph.BridgePaths(ctx, h.ID, tl.ID, bridgeLimit)
	if err != nil {
		return Result{}, err
	}
	if bridge := heaviestBridge(paths); bridge != "" {
		res.Status, res.UIHint = StatusRelevant, HintWeak
		res.Resolved.Bridge = bridge
		return res, nil
	}

	res.Status, res.UIHint = StatusUnsure, HintMissing
	return res, nil
}

// node resolves name to a graph node: exact name first, then the lookup resolver.
func (v *Verifier) node(ctx context.Context, name string) (kg.Node, bool, error) {
	nodes, err := v.graph.FindByName(ctx, name, nameLimit)
	if err != nil {
		return kg.Node{}, false, err
	}
	if len(nodes) > 0 {
		return nodes[0], true, nil
	}
	if v.lookup == nil {
		return kg.Node{}, false, nil
	}
	matches, err := v.lookup.Resolve(ctx, []string{name}, resolver.Lookup)
	if err != nil || len(matches) == 0 || !matches[0].Matched {
		if err != nil {
			v.log.Warn("name lookup failed", "name", name, "error", err)
		}
		return kg.Node{}, false, nil
	}
	return kg.Node{ID: matches[0].ID, Name: matches[0].Name}, true, nil
}

type typeGroup struct {
	typ    string
	count  int
	papers []string
}

// groupByType aggregates direct relations by canonical type, ordered by count desc then
// first-seen.
func groupByType(paths []kg.Path) []typeGroup {
	idx := map[string]int{}
	var groups []typeGroup
	for _, p := range paths {
		for _, r := range p.Relations {
			typ := relation.Normalize(r.Type)
			i, ok := idx[typ]
			if !ok {
				i = len(groups)
				idx[typ] = i
				groups = append(groups, typeGroup{typ: typ, papers: []string{}})
			}
			groups[i].count++
			if ev := strings.TrimSpace(r.Evidence); ev != "" && len(groups[i].papers) < maxPapers {
				groups[i].papers = append(groups[i].papers, ev)
			}
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].count > groups[j].count })
	return groups
}

// heaviestBridge names the middle node with the most connecting relations.
func heaviestBridge(paths []kg.Path) string {
	weight := map[string]int{}
	names := map[string]string{}
	var order []string
	for _, p := range paths {
		if len(p.Nodes) != 3 {
			continue
		}
		m := p.Nodes[1]
		if _, ok := weight[m.ID]; !ok {
			order = append(order, m.ID)
			names[m.ID] = m.Name
		}
		weight[m.ID] += len(p.Relations)
	}
	best := ""
	for _, id := range order {
		if best == "" || weight[id] > weight[best] {
			best = id
		}
	}
	return names[best]
}
