package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/kg/kgtest"
	"github.com/yungbote/kgchat-backend/internal/recommend"
	"github.com/yungbote/kgchat-backend/internal/resolver"
	"github.com/yungbote/kgchat-backend/internal/subgraph"
)

type fakeResolver struct {
	known map[string]kg.Entity
	err   error

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeResolver) Resolve(_ context.Context, mentions []string, mode resolver.Mode) ([]resolver.Match, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), mentions...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if mode != resolver.Strict {
		return nil, fmt.Errorf("unexpected mode %s", mode)
	}
	out := make([]resolver.Match, len(mentions))
	for i, m := range mentions {
		out[i] = resolver.Match{Mention: m}
		if e, ok := f.known[strings.ToLower(m)]; ok {
			out[i] = resolver.Match{Mention: m, ID: e.ID, Name: e.Name, Score: 0.99, Matched: true}
		}
	}
	return out, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	turns    []string
	matched  int
	missed   int
	recEvent map[string]int
}

func (r *fakeRecorder) ObserveTurn(mode, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, mode+":"+outcome)
}

func (r *fakeRecorder) ObserveResolution(matched, unmatched int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matched += matched
	r.missed += unmatched
}

func (r *fakeRecorder) ObserveRecommendation(event string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recEvent == nil {
		r.recEvent = map[string]int{}
	}
	r.recEvent[event] += n
}

func healthGraph() *kgtest.Graph {
	return kgtest.New().
		AddNode("C1", "Fish Oil", kg.CategorySupplement).
		AddNode("C2", "Inflammation", kg.CategoryDisease).
		AddNode("C3", "Arthritis", kg.CategoryDisease).
		AddNode("C4", "IL6", kg.CategoryGene).
		AddNode("C5", "Turmeric", kg.CategorySupplement).
		AddEdge("C1", "C2", "INHIBITS", "111|222").
		AddEdge("C2", "C3", "ASSOCIATED_WITH", "333").
		AddEdge("C4", "C2", "STIMULATES", "444")
}

func healthResolver() *fakeResolver {
	return &fakeResolver{known: map[string]kg.Entity{
		"fish oil":     {ID: "C1", Name: "Fish Oil"},
		"inflammation": {ID: "C2", Name: "Inflammation"},
		"arthritis":    {ID: "C3", Name: "Arthritis"},
		"il6":          {ID: "C4", Name: "IL6"},
		"turmeric":     {ID: "C5", Name: "Turmeric"},
	}}
}

func newTestAgent(g *kgtest.Graph, res Resolver, cfg config.AgentConfig, rec Recorder) *Agent {
	builder := subgraph.NewBuilder(g, config.SubgraphConfig{}, nil)
	space := recommend.NewSpace(recommend.NewMemoryStore(0), g, 0, nil)
	return New(res, builder, space, g, cfg, rec, nil)
}

func texts(items []recommend.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%d:%s", it.ID, it.Text)
	}
	return out
}

func TestHandleDirectPair(t *testing.T) {
	t.Parallel()

	res := healthResolver()
	rec := &fakeRecorder{}
	a := newTestAgent(healthGraph(), res, config.AgentConfig{}, rec)

	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-1",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if out.Payload.NodeCount() != 2 || out.Payload.EdgeCount() != 1 {
		t.Fatalf("nodes=%d edges=%d", out.Payload.NodeCount(), out.Payload.EdgeCount())
	}
	e := out.Payload.Edges()[0]
	if e.Category != "INHIBITS" || e.ID != "C1|C2|INHIBITS" || e.PubMedID != "111 | 222" {
		t.Fatalf("edge=%+v", e)
	}
	if out.NameMapping["Fish Oil"] != "Fish Oil" || out.NameMapping["Inflammation"] != "Inflammation" {
		t.Fatalf("name mapping=%v", out.NameMapping)
	}
	if len(out.Unmatched) != 0 {
		t.Fatalf("unmatched=%v", out.Unmatched)
	}

	want := []string{
		"1:Fish Oil and Disease",
		"2:Inflammation and Dietary Supplement",
		"3:Inflammation and Disease",
		"4:Inflammation and Gene",
	}
	if fmt.Sprint(texts(out.Recommendations)) != fmt.Sprint(want) {
		t.Fatalf("recommendations=%v", texts(out.Recommendations))
	}

	if len(res.calls) != 1 || fmt.Sprint(res.calls[0]) != "[Fish Oil Inflammation]" {
		t.Fatalf("resolve calls=%v", res.calls)
	}
	if fmt.Sprint(rec.turns) != "[new_conversation:ok]" || rec.matched != 2 || rec.recEvent["discovered"] != 4 {
		t.Fatalf("recorder=%+v", rec)
	}
}

func TestHandleOneResolveCallPerTurn(t *testing.T) {
	t.Parallel()

	res := healthResolver()
	a := newTestAgent(healthGraph(), res, config.AgentConfig{}, nil)

	_, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-batch",
		Triples: []kg.Triple{
			{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"},
			{Head: " fish oil ", Relation: "treats", Tail: "Arthritis"},
			{Head: "Inflammation", Relation: "associated with", Tail: "Arthritis"},
		},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(res.calls) != 1 {
		t.Fatalf("resolve calls=%d", len(res.calls))
	}
	if fmt.Sprint(res.calls[0]) != "[Fish Oil Inflammation fish oil Arthritis]" {
		t.Fatalf("batch=%q", res.calls[0])
	}
}

func TestHandlePlaceholderForUnmatchedEnd(t *testing.T) {
	t.Parallel()

	a := newTestAgent(healthGraph(), healthResolver(), config.AgentConfig{}, nil)

	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-ph",
		Triples:        []kg.Triple{{Head: "Choerospondias", Relation: "treats", Tail: "Inflammation"}},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	nodes := out.Payload.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("nodes=%+v", nodes)
	}
	if nodes[0].ID != "C2" || nodes[0].Category != kg.CategoryDisease || nodes[0].NotFound {
		t.Fatalf("anchor=%+v", nodes[0])
	}
	if nodes[1].ID != subgraph.NotFoundPrefix+"choerospondias" || !nodes[1].NotFound || nodes[1].Category != kg.CategoryNotFound {
		t.Fatalf("placeholder=%+v", nodes[1])
	}

	edges := out.Payload.Edges()
	if len(edges) != 1 || edges[0].Category != "TREATS" || !edges[0].Placeholder {
		t.Fatalf("edges=%+v", edges)
	}
	if fmt.Sprint(out.Unmatched) != "[Choerospondias]" {
		t.Fatalf("unmatched=%v", out.Unmatched)
	}
}

func TestHandleBothEndsUnmatched(t *testing.T) {
	t.Parallel()

	a := newTestAgent(healthGraph(), healthResolver(), config.AgentConfig{}, nil)

	out, err := a.Handle(context.Background(), Request{
		Mode:    ModeNew,
		Triples: []kg.Triple{{Head: "Xyzzy", Relation: "", Tail: "Plugh"}},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.ConversationID == "" {
		t.Fatalf("expected a generated conversation id")
	}
	if out.Payload.NodeCount() != 2 || out.Payload.EdgeCount() != 1 {
		t.Fatalf("nodes=%+v edges=%+v", out.Payload.Nodes(), out.Payload.Edges())
	}
	if e := out.Payload.Edges()[0]; e.Category != "ASSOCIATED_WITH" {
		t.Fatalf("edge=%+v", e)
	}
	if len(out.Recommendations) != 0 {
		t.Fatalf("recommendations=%v", out.Recommendations)
	}
}

func TestHandleNeighborhoodFallback(t *testing.T) {
	t.Parallel()

	g := healthGraph()
	a := newTestAgent(g, healthResolver(), config.AgentConfig{}, nil)

	// Turmeric has no edges, so the pair finds neither a direct path nor a bridge.
	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-fb",
		Triples:        []kg.Triple{{Head: "Turmeric", Relation: "treats", Tail: "Arthritis"}},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if g.Calls["Neighborhood"] != 2 {
		t.Fatalf("neighborhood calls=%d", g.Calls["Neighborhood"])
	}
	if !out.Payload.HasNode("C3") || !out.Payload.HasNode("C2") || out.Payload.EdgeCount() != 1 {
		t.Fatalf("nodes=%+v edges=%+v", out.Payload.Nodes(), out.Payload.Edges())
	}
}

func TestHandleIncompleteTriples(t *testing.T) {
	t.Parallel()

	res := healthResolver()
	a := newTestAgent(healthGraph(), res, config.AgentConfig{}, nil)

	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-inc",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces"}, {Head: " ", Tail: "Inflammation"}},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(out.Incomplete) != 2 {
		t.Fatalf("incomplete=%+v", out.Incomplete)
	}
	if out.Payload.NodeCount() != 0 || len(res.calls) != 0 {
		t.Fatalf("nodes=%d calls=%d", out.Payload.NodeCount(), len(res.calls))
	}
}

func TestHandleContinueConsumesRecommendation(t *testing.T) {
	t.Parallel()

	g := healthGraph()
	rec := &fakeRecorder{}
	a := newTestAgent(g, healthResolver(), config.AgentConfig{}, rec)
	ctx := context.Background()

	if _, err := a.Handle(ctx, Request{
		Mode:           ModeNew,
		ConversationID: "conv-c",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}},
	}); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	id := 4
	out, err := a.Handle(ctx, Request{Mode: ModeContinue, ConversationID: "conv-c", RecommendationID: &id})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if out.Consumed == nil || out.Consumed.AnchorID != "C2" || out.Consumed.Category != kg.CategoryGene {
		t.Fatalf("consumed=%+v", out.Consumed)
	}
	if len(out.Recommendations) != 3 {
		t.Fatalf("recommendations=%v", texts(out.Recommendations))
	}
	if g.Calls["TypedNeighborhood"] != 0 || out.Payload.NodeCount() != 0 {
		t.Fatalf("typed expansion ran without expand_consumed")
	}

	// Consuming the same id again is a no-op.
	out, err = a.Handle(ctx, Request{Mode: ModeContinue, ConversationID: "conv-c", RecommendationID: &id})
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if out.Consumed != nil || len(out.Recommendations) != 3 {
		t.Fatalf("consumed=%+v recommendations=%v", out.Consumed, texts(out.Recommendations))
	}
	if rec.recEvent["consumed"] != 1 || rec.recEvent["consume_miss"] != 1 {
		t.Fatalf("events=%v", rec.recEvent)
	}
}

func TestHandleNewConversationIgnoresRecommendationID(t *testing.T) {
	t.Parallel()

	a := newTestAgent(healthGraph(), healthResolver(), config.AgentConfig{}, nil)
	ctx := context.Background()
	triples := []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}}

	if _, err := a.Handle(ctx, Request{Mode: ModeNew, ConversationID: "conv-n", Triples: triples}); err != nil {
		t.Fatalf("first: %v", err)
	}
	id := 1
	out, err := a.Handle(ctx, Request{Mode: ModeNew, ConversationID: "conv-n", Triples: triples, RecommendationID: &id})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if out.Consumed != nil {
		t.Fatalf("consumed=%+v", out.Consumed)
	}
	// Reset keeps the counter, so the rediscovered candidates get fresh ids.
	if got := out.Recommendations[0].ID; got != 5 {
		t.Fatalf("first id after reset=%d", got)
	}
}

func TestHandleExpandConsumed(t *testing.T) {
	t.Parallel()

	g := healthGraph()
	a := newTestAgent(g, healthResolver(), config.AgentConfig{ExpandConsumed: true}, nil)
	ctx := context.Background()

	if _, err := a.Handle(ctx, Request{
		Mode:           ModeNew,
		ConversationID: "conv-x",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}},
	}); err != nil {
		t.Fatalf("first turn: %v", err)
	}

	id := 3
	out, err := a.Handle(ctx, Request{Mode: ModeContinue, ConversationID: "conv-x", RecommendationID: &id})
	if err != nil {
		t.Fatalf("continue: %v", err)
	}
	if out.Consumed == nil || out.Consumed.Category != kg.CategoryDisease {
		t.Fatalf("consumed=%+v", out.Consumed)
	}
	if !out.Payload.HasNode("C2") || !out.Payload.HasNode("C3") || out.Payload.EdgeCount() != 1 {
		t.Fatalf("nodes=%+v edges=%+v", out.Payload.Nodes(), out.Payload.Edges())
	}
}

func TestHandleAnnotatedResponse(t *testing.T) {
	t.Parallel()

	res := healthResolver()
	a := newTestAgent(healthGraph(), res, config.AgentConfig{}, nil)

	reply := `[Fish Oil|Dietary Supplement]($N1) may [reduce]($R1, $N1, $N2) [inflammation]($N2). || ["Fish Oil"]`
	out, err := a.Handle(context.Background(), Request{Mode: ModeNew, ConversationID: "conv-a", Response: reply})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Payload.NodeCount() != 2 || out.Payload.EdgeCount() != 1 {
		t.Fatalf("nodes=%+v edges=%+v", out.Payload.Nodes(), out.Payload.Edges())
	}
	if fmt.Sprint(out.Question) != "[Fish Oil]" {
		t.Fatalf("question=%v", out.Question)
	}
	if out.NameMapping["Inflammation"] != "inflammation" {
		t.Fatalf("name mapping=%v", out.NameMapping)
	}
}

func TestHandleAnnotatedMentionsOnly(t *testing.T) {
	t.Parallel()

	a := newTestAgent(healthGraph(), healthResolver(), config.AgentConfig{}, nil)

	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-m",
		Response:       `[IL6]($N1) and [Bogus herb]($N2) came up.`,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Payload.HasNode("C4") || !out.Payload.HasNode("C2") {
		t.Fatalf("nodes=%+v", out.Payload.Nodes())
	}
	if !out.Payload.HasNode(subgraph.NotFoundPrefix + "bogus herb") {
		t.Fatalf("missing placeholder: %+v", out.Payload.Nodes())
	}
}

func TestHandleInvalidMode(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	a := newTestAgent(healthGraph(), healthResolver(), config.AgentConfig{}, rec)
	_, err := a.Handle(context.Background(), Request{Mode: "restart"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if fmt.Sprint(rec.turns) != "[restart:error]" {
		t.Fatalf("turns=%v", rec.turns)
	}

	if _, err := ParseMode("continue_conversation"); err != nil {
		t.Fatalf("ParseMode: %v", err)
	}
	if _, err := ParseMode(""); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("ParseMode empty: %v", err)
	}
}

func TestHandleStoreFailure(t *testing.T) {
	t.Parallel()

	g := healthGraph()
	g.Err = errors.New("connection refused")
	a := newTestAgent(g, healthResolver(), config.AgentConfig{}, nil)

	out, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-f",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}},
	})
	if !errors.Is(err, kg.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected no partial result, got %+v", out)
	}
}

func TestHandleEmbeddingFailure(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{err: fmt.Errorf("%w: upstream 503", resolver.ErrEmbeddingUnavailable)}
	a := newTestAgent(healthGraph(), res, config.AgentConfig{}, nil)

	_, err := a.Handle(context.Background(), Request{
		Mode:           ModeNew,
		ConversationID: "conv-e",
		Triples:        []kg.Triple{{Head: "Fish Oil", Relation: "reduces", Tail: "Inflammation"}},
	})
	if !errors.Is(err, resolver.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
