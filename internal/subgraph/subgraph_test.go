package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/kg/kgtest"
	"github.com/yungbote/kgchat-backend/internal/relation"
)

func testGraph() *kgtest.Graph {
	return kgtest.New().
		AddNode("C1", "Fish Oil", kg.CategorySupplement).
		AddNode("C2", "Inflammation", kg.CategoryDisease).
		AddNode("C3", "Omega-3", kg.CategorySupplement).
		AddNode("C4", "Depression", kg.CategoryDisease).
		AddNode("C5", "IL6", kg.CategoryGene).
		AddEdge("C1", "C2", "INHIBITS", "PMID:1").
		AddEdge("C2", "C1", "INHIBITS", "PMID:2").
		AddEdge("C1", "C3", "PRODUCES", "PMID:3").
		AddEdge("C3", "C4", "AFFECTS", "PMID:4").
		AddEdge("C2", "C5", "ASSOCIATED_WITH", "")
}

func TestPayloadMergesEvidenceUnderUndirectedKey(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	p.AddNode(kg.Node{ID: "C1", Name: "Fish Oil", Category: kg.CategorySupplement})
	p.AddNode(kg.Node{ID: "C2", Name: "Inflammation", Category: kg.CategoryDisease})

	if !p.AddRelation(kg.Relation{SourceID: "C1", TargetID: "C2", Type: "INHIBITS", Evidence: "PMID:1"}) {
		t.Fatalf("first relation should be new")
	}
	if !p.AddRelation(kg.Relation{SourceID: "C2", TargetID: "C1", Type: "inhibits", Evidence: "PMID:2"}) {
		t.Fatalf("new evidence should be recorded")
	}
	if p.AddRelation(kg.Relation{SourceID: "C1", TargetID: "C2", Type: "INHIBITS", Evidence: "PMID:1"}) {
		t.Fatalf("repeated evidence should be a no-op")
	}
	p.AddRelation(kg.Relation{SourceID: "C1", TargetID: "C2", Type: "TREATS", Evidence: "PMID:1"})

	edges := p.Edges()
	if len(edges) != 2 {
		t.Fatalf("edges=%d want 2", len(edges))
	}
	e := edges[0]
	if e.ID != "C1|C2|INHIBITS" || e.Category != relation.Inhibits || e.Source != "C1" || e.Target != "C2" {
		t.Fatalf("edge=%+v", e)
	}
	if strings.Join(e.Evidence, ",") != "PMID:1,PMID:2" || e.PubMedID != "PMID:1 | PMID:2" {
		t.Fatalf("evidence=%v pubmed=%q", e.Evidence, e.PubMedID)
	}
}

func TestPayloadSharedEvidenceKeepsEdgeIDsUnique(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	p.AddRelation(kg.Relation{SourceID: "C1", TargetID: "C2", Type: "INHIBITS", Evidence: "PMID1"})
	p.AddRelation(kg.Relation{SourceID: "C1", TargetID: "C3", Type: "TREATS", Evidence: "PMID1"})
	p.AddRelation(kg.Relation{SourceID: "C2", TargetID: "C1", Type: "TREATS", Evidence: "PMID1"})

	edges := p.Edges()
	if len(edges) != 3 {
		t.Fatalf("edges=%d want 3", len(edges))
	}
	seen := map[string]bool{}
	for _, e := range edges {
		if seen[e.ID] {
			t.Fatalf("edge id %q repeated: %+v", e.ID, edges)
		}
		seen[e.ID] = true
		if e.PubMedID != "PMID1" {
			t.Fatalf("pubmed=%q", e.PubMedID)
		}
	}
	if edges[1].ID != "C1|C3|TREATS" {
		t.Fatalf("id=%q", edges[1].ID)
	}
}

func TestPayloadComputedKeyWhenNoEvidence(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	p.AddRelation(kg.Relation{SourceID: "B", TargetID: "A", Type: "CAUSES"})
	p.AddRelation(kg.Relation{SourceID: "A", TargetID: "B", Type: "CAUSES"})
	edges := p.Edges()
	if len(edges) != 1 {
		t.Fatalf("edges=%d", len(edges))
	}
	if edges[0].ID != "A|B|CAUSES" || len(edges[0].Evidence) != 1 || edges[0].Evidence[0] != edges[0].ID {
		t.Fatalf("edge=%+v", edges[0])
	}
}

func TestPayloadSplitsJoinedEvidence(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	p.AddRelation(kg.Relation{SourceID: "A", TargetID: "B", Type: "CAUSES", Evidence: "1 | 2|"})
	p.AddRelation(kg.Relation{SourceID: "A", TargetID: "B", Type: "CAUSES", Evidence: "2 | 3"})
	if got := strings.Join(p.Edges()[0].Evidence, ","); got != "1,2,3" {
		t.Fatalf("evidence=%s", got)
	}
}

func TestPayloadNodeRegisteredOnce(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	first, isNew := p.AddNode(kg.Node{ID: "C1", Name: "Fish Oil", Category: kg.CategorySupplement})
	if !isNew {
		t.Fatalf("first sight should register")
	}
	again, isNew := p.AddNode(kg.Node{ID: "C1", Name: "fish oil (other)", Category: kg.CategoryDrugs})
	if isNew || again != first {
		t.Fatalf("second sight should reuse %+v, got %+v", first, again)
	}
	if p.NodeCount() != 1 {
		t.Fatalf("nodes=%d", p.NodeCount())
	}
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	p.AddNode(kg.Node{ID: "C4", Name: "Alzheimer's Disease", Category: kg.CategoryDisease})
	node := p.AddPlaceholder("Choerospondias axillaris", "C4", "slow")
	if !node.NotFound || node.Category != kg.CategoryNotFound || node.Name != "Choerospondias axillaris" {
		t.Fatalf("node=%+v", node)
	}
	if !strings.HasPrefix(node.ID, NotFoundPrefix) {
		t.Fatalf("id=%q", node.ID)
	}
	edges := p.Edges()
	if len(edges) != 1 || !edges[0].Placeholder || edges[0].Category != relation.Inhibits {
		t.Fatalf("edges=%+v", edges)
	}
	if len(edges[0].Evidence) != 1 {
		t.Fatalf("placeholder edge evidence=%v", edges[0].Evidence)
	}

	// Node only when there is no anchor.
	p2 := NewPayload()
	p2.AddPlaceholder("x", "", "")
	if p2.NodeCount() != 1 || p2.EdgeCount() != 0 {
		t.Fatalf("nodes=%d edges=%d", p2.NodeCount(), p2.EdgeCount())
	}
}

func TestPayloadJSON(t *testing.T) {
	t.Parallel()

	p := NewPayload()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"nodes":[],"edges":[]}` {
		t.Fatalf("raw=%s", raw)
	}
}

func TestBuilderDirectThenBridge(t *testing.T) {
	t.Parallel()

	g := testGraph()
	b := NewBuilder(g, config.SubgraphConfig{}, nil)
	p := NewPayload()

	tier, err := b.Pair(context.Background(), p, "C1", "C2")
	if err != nil || tier != TierDirect {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
	if g.Calls["BridgePaths"] != 0 {
		t.Fatalf("bridge queried despite direct hit")
	}
	if p.NodeCount() != 2 || p.EdgeCount() != 1 {
		t.Fatalf("nodes=%d edges=%d", p.NodeCount(), p.EdgeCount())
	}

	tier, err = b.Pair(context.Background(), p, "C1", "C4")
	if err != nil || tier != TierBridge {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
	if !p.HasNode("C3") || !p.HasNode("C4") {
		t.Fatalf("bridge nodes missing: %+v", p.Nodes())
	}
	if p.NodeCount() != 4 || p.EdgeCount() != 3 {
		t.Fatalf("nodes=%d edges=%d", p.NodeCount(), p.EdgeCount())
	}

	tier, err = b.Pair(context.Background(), p, "C4", "C5")
	if err != nil || tier != TierNone {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
}

func TestBuilderSharedEntityRegisteredOnce(t *testing.T) {
	t.Parallel()

	g := testGraph()
	b := NewBuilder(g, config.SubgraphConfig{}, nil)
	p := NewPayload()
	for _, pair := range [][2]string{{"C1", "C2"}, {"C1", "C3"}, {"C2", "C1"}} {
		if _, err := b.Pair(context.Background(), p, pair[0], pair[1]); err != nil {
			t.Fatalf("Pair: %v", err)
		}
	}
	count := 0
	for _, n := range p.Nodes() {
		if n.ID == "C1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("C1 registered %d times", count)
	}
}

func TestBuilderSingleAndTyped(t *testing.T) {
	t.Parallel()

	g := testGraph()
	b := NewBuilder(g, config.SubgraphConfig{NeighborhoodLimit: 20}, nil)

	p := NewPayload()
	tier, err := b.Single(context.Background(), p, "C2")
	if err != nil || tier != TierNeighborhood {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
	if p.NodeCount() != 3 || p.EdgeCount() != 2 {
		t.Fatalf("nodes=%d edges=%d", p.NodeCount(), p.EdgeCount())
	}

	p = NewPayload()
	tier, err = b.Typed(context.Background(), p, "C2", kg.CategoryGene)
	if err != nil || tier != TierTyped {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
	if p.NodeCount() != 2 || !p.HasNode("C5") {
		t.Fatalf("nodes=%+v", p.Nodes())
	}

	if tier, _ := b.Single(context.Background(), NewPayload(), "missing"); tier != TierNone {
		t.Fatalf("tier=%q", tier)
	}
}

func TestBuilderSameIDUsesNeighborhood(t *testing.T) {
	t.Parallel()

	g := testGraph()
	b := NewBuilder(g, config.SubgraphConfig{}, nil)
	tier, err := b.Pair(context.Background(), NewPayload(), "C3", "C3")
	if err != nil || tier != TierNeighborhood {
		t.Fatalf("tier=%q err=%v", tier, err)
	}
}

func TestBuilderStoreFailureIsHard(t *testing.T) {
	t.Parallel()

	g := testGraph()
	g.Err = errors.New("connection refused")
	b := NewBuilder(g, config.SubgraphConfig{}, nil)
	_, err := b.Pair(context.Background(), NewPayload(), "C1", "C2")
	if !errors.Is(err, kg.ErrStoreUnavailable) {
		t.Fatalf("err=%v", err)
	}
}
