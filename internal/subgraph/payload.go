// Package subgraph accumulates KG paths into a deduplicated visualization payload.
package subgraph

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/relation"
)

// NotFoundPrefix prefixes placeholder node ids so they never collide with KG identities.
const NotFoundPrefix = "notfound:"

type Node struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category kg.Category `json:"category"`
	NotFound bool        `json:"not_found,omitempty"`
}

// Edge is undirected; Source/Target keep the orientation of the first sighting.
type Edge struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Category    string   `json:"category"`
	Evidence    []string `json:"evidence"`
	PubMedID    string   `json:"PubMed_ID"`
	Placeholder bool     `json:"placeholder,omitempty"`
}

type edgeKey struct {
	lo, hi   string
	category string
}

func keyOf(a, b, category string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{lo: a, hi: b, category: category}
}

func (k edgeKey) String() string {
	return k.lo + "|" + k.hi + "|" + k.category
}

type edgeState struct {
	Edge
	seen map[string]struct{}
}

// Payload is the per-turn accumulator. Node identity is the KG id; edge identity is the
// unordered endpoint pair plus relation category, and Edge.ID is that key. Not safe for concurrent use.
type Payload struct {
	nodes   []Node
	nodeIdx map[string]int
	edges   []*edgeState
	edgeIdx map[edgeKey]int
}

func NewPayload() *Payload {
	return &Payload{
		nodeIdx: make(map[string]int),
		edgeIdx: make(map[edgeKey]int),
	}
}

// AddNode registers n on first sight and returns the registered record. Later sightings reuse
// it unchanged.
func (p *Payload) AddNode(n kg.Node) (Node, bool) {
	if i, ok := p.nodeIdx[n.ID]; ok {
		return p.nodes[i], false
	}
	rec := Node{ID: n.ID, Name: n.Name, Category: n.Category}
	if rec.Category == "" {
		rec.Category = kg.CategoryUngrouped
	}
	if rec.Category == kg.CategoryNotFound {
		rec.NotFound = true
	}
	p.nodeIdx[n.ID] = len(p.nodes)
	p.nodes = append(p.nodes, rec)
	return rec, true
}

// AddRelation merges r under its edge key. It reports whether anything new (an edge or an
// evidence id) was recorded.
func (p *Payload) AddRelation(r kg.Relation) bool {
	return p.addEdge(r.SourceID, r.TargetID, canonicalType(r.Type), splitEvidence(r.Evidence), false)
}

// MergePath registers every node, then every relation, of path.
func (p *Payload) MergePath(path kg.Path) {
	for _, n := range path.Nodes {
		p.AddNode(n)
	}
	for _, r := range path.Relations {
		p.AddRelation(r)
	}
}

func (p *Payload) Merge(paths []kg.Path) {
	for _, path := range paths {
		p.MergePath(path)
	}
}

// AddPlaceholder records a "not found" node for mention and links it to anchor with the
// normalized relation. An empty anchor id adds the node only.
func (p *Payload) AddPlaceholder(mention string, anchorID, rel string) Node {
	node, _ := p.AddNode(Placeholder(mention))
	if anchorID != "" && anchorID != node.ID {
		category := relation.Normalize(rel)
		if category == "" {
			category = relation.AssociatedWith
		}
		p.addEdge(anchorID, node.ID, category, nil, true)
	}
	return node
}

// Placeholder builds the "not found" node for mention.
func Placeholder(mention string) kg.Node {
	name := strings.TrimSpace(mention)
	return kg.Node{ID: NotFoundPrefix + strings.ToLower(name), Name: name, Category: kg.CategoryNotFound}
}

func (p *Payload) addEdge(src, tgt, category string, evidence []string, placeholder bool) bool {
	key := keyOf(src, tgt, category)
	if len(evidence) == 0 {
		evidence = []string{key.String()}
	}

	i, ok := p.edgeIdx[key]
	if !ok {
		st := &edgeState{
			Edge: Edge{
				ID:          key.String(),
				Source:      src,
				Target:      tgt,
				Category:    category,
				Placeholder: placeholder,
			},
			seen: make(map[string]struct{}, len(evidence)),
		}
		for _, ev := range evidence {
			st.addEvidence(ev)
		}
		p.edgeIdx[key] = len(p.edges)
		p.edges = append(p.edges, st)
		return true
	}

	added := false
	for _, ev := range evidence {
		if p.edges[i].addEvidence(ev) {
			added = true
		}
	}
	return added
}

func (s *edgeState) addEvidence(ev string) bool {
	if _, ok := s.seen[ev]; ok {
		return false
	}
	s.seen[ev] = struct{}{}
	s.Evidence = append(s.Evidence, ev)
	return true
}

func (p *Payload) HasNode(id string) bool {
	_, ok := p.nodeIdx[id]
	return ok
}

func (p *Payload) NodeCount() int { return len(p.nodes) }
func (p *Payload) EdgeCount() int { return len(p.edges) }

// Nodes returns the registered nodes in first-seen order.
func (p *Payload) Nodes() []Node {
	out := make([]Node, len(p.nodes))
	copy(out, p.nodes)
	return out
}

// Edges returns the merged edges in first-seen order.
func (p *Payload) Edges() []Edge {
	out := make([]Edge, len(p.edges))
	for i, st := range p.edges {
		e := st.Edge
		e.Evidence = append([]string(nil), st.Evidence...)
		e.PubMedID = strings.Join(e.Evidence, " | ")
		out[i] = e
	}
	return out
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{Nodes: p.Nodes(), Edges: p.Edges()})
}

func canonicalType(t string) string {
	if c := relation.Normalize(t); c != "" {
		return c
	}
	return relation.AssociatedWith
}

// splitEvidence accepts single ids as well as " | "-joined lists.
func splitEvidence(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
