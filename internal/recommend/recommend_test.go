package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/kg/kgtest"
)

func testGraph() *kgtest.Graph {
	return kgtest.New().
		AddNode("C1", "Fish Oil", kg.CategorySupplement).
		AddNode("C2", "Inflammation", kg.CategoryDisease).
		AddNode("C3", "Omega-3", kg.CategorySupplement).
		AddNode("C4", "IL6", kg.CategoryGene).
		AddNode("C5", "Depression", kg.CategoryDisease).
		AddEdge("C1", "C2", "INHIBITS", "1").
		AddEdge("C1", "C3", "PRODUCES", "2").
		AddEdge("C1", "C5", "AFFECTS", "3").
		AddEdge("C2", "C4", "ASSOCIATED_WITH", "4")
}

var (
	fishOil      = kg.Entity{ID: "C1", Name: "Fish Oil"}
	inflammation = kg.Entity{ID: "C2", Name: "Inflammation"}
)

func ids(cands []Candidate) []int {
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

func TestDiscoverIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sp := NewSpace(NewMemoryStore(0), testGraph(), 30, nil)

	n, err := sp.Discover(ctx, "conv", []kg.Entity{fishOil, inflammation, fishOil})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	// Fish Oil: Disease, Dietary Supplement. Inflammation: Dietary Supplement, Gene.
	if n != 4 {
		t.Fatalf("added=%d want 4", n)
	}
	first, _ := sp.List(ctx, "conv")

	n, err = sp.Discover(ctx, "conv", []kg.Entity{inflammation, fishOil})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if n != 0 {
		t.Fatalf("second discover added %d", n)
	}
	second, _ := sp.List(ctx, "conv")
	if fmt.Sprint(ids(first)) != fmt.Sprint(ids(second)) {
		t.Fatalf("ids changed: %v -> %v", ids(first), ids(second))
	}
	if fmt.Sprint(ids(first)) != "[1 2 3 4]" {
		t.Fatalf("ids=%v", ids(first))
	}
	if first[0].Text() != "Fish Oil and Disease" {
		t.Fatalf("text=%q", first[0].Text())
	}
}

func TestConsume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sp := NewSpace(NewMemoryStore(0), testGraph(), 30, nil)
	if _, err := sp.Discover(ctx, "conv", []kg.Entity{fishOil}); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	cand, ok, err := sp.Consume(ctx, "conv", 1)
	if err != nil || !ok || cand.Category != kg.CategoryDisease {
		t.Fatalf("cand=%+v ok=%v err=%v", cand, ok, err)
	}
	list, _ := sp.List(ctx, "conv")
	if fmt.Sprint(ids(list)) != "[2]" {
		t.Fatalf("ids=%v", ids(list))
	}

	for _, id := range []int{1, 99} {
		_, ok, err := sp.Consume(ctx, "conv", id)
		if err != nil || ok {
			t.Fatalf("consume(%d) ok=%v err=%v", id, ok, err)
		}
	}
	after, _ := sp.List(ctx, "conv")
	if fmt.Sprint(ids(after)) != "[2]" {
		t.Fatalf("space changed: %v", ids(after))
	}
}

func TestIDsNeverReused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sp := NewSpace(NewMemoryStore(0), testGraph(), 30, nil)
	if _, err := sp.Discover(ctx, "conv", []kg.Entity{fishOil}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if _, _, err := sp.Consume(ctx, "conv", 2); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	// A consumed pair may be rediscovered, but under a fresh id.
	if _, err := sp.Discover(ctx, "conv", []kg.Entity{fishOil}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	list, _ := sp.List(ctx, "conv")
	if fmt.Sprint(ids(list)) != "[1 3]" {
		t.Fatalf("ids=%v", ids(list))
	}

	if err := sp.Reset(ctx, "conv"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if list, _ := sp.List(ctx, "conv"); len(list) != 0 {
		t.Fatalf("reset left %v", ids(list))
	}
	if _, err := sp.Discover(ctx, "conv", []kg.Entity{fishOil}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	list, _ = sp.List(ctx, "conv")
	if fmt.Sprint(ids(list)) != "[4 5]" {
		t.Fatalf("ids after reset=%v", ids(list))
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sp := NewSpace(NewMemoryStore(0), testGraph(), 30, nil)
	if _, err := sp.Discover(ctx, "a", []kg.Entity{fishOil}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if _, err := sp.Discover(ctx, "b", []kg.Entity{inflammation}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if err := sp.Reset(ctx, "b"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	a, _ := sp.List(ctx, "a")
	if fmt.Sprint(ids(a)) != "[1 2]" {
		t.Fatalf("a=%v", ids(a))
	}
	if _, ok, _ := sp.Consume(ctx, "b", 1); ok {
		t.Fatalf("consume crossed conversations")
	}
}

func TestMemoryStoreConcurrentAddsUniqueIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			anchor := kg.Entity{ID: fmt.Sprintf("C%d", i), Name: fmt.Sprintf("n%d", i)}
			if _, err := st.Add(ctx, "conv", anchor, []kg.Category{kg.CategoryGene, kg.CategoryDrugs}); err != nil {
				t.Errorf("Add: %v", err)
			}
		}(i)
	}
	wg.Wait()

	list, _ := st.List(ctx, "conv")
	if len(list) != 32 {
		t.Fatalf("len=%d", len(list))
	}
	seen := map[int]bool{}
	for _, c := range list {
		if seen[c.ID] {
			t.Fatalf("duplicate id %d", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestMemoryStoreReadsDoNotCreateSpaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore(time.Hour)
	for i := 0; i < 100; i++ {
		conv := fmt.Sprintf("conv-%d", i)
		if list, err := st.List(ctx, conv); err != nil || len(list) != 0 {
			t.Fatalf("List=%v err=%v", list, err)
		}
		if _, ok, err := st.Consume(ctx, conv, 1); ok || err != nil {
			t.Fatalf("Consume ok=%v err=%v", ok, err)
		}
		if err := st.Reset(ctx, conv); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}
	if n := len(st.spaces); n != 0 {
		t.Fatalf("spaces=%d want 0", n)
	}
}

func TestMemoryStoreExpiresIdleSpaces(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := NewMemoryStore(10 * time.Minute)
	st.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		anchor := kg.Entity{ID: fmt.Sprintf("C%d", i)}
		if _, err := st.Add(ctx, fmt.Sprintf("idle-%d", i), anchor, []kg.Category{kg.CategoryGene}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := st.Add(ctx, "active", fishOil, []kg.Category{kg.CategoryDisease}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now = now.Add(6 * time.Minute)
	if list, _ := st.List(ctx, "active"); len(list) != 1 {
		t.Fatalf("active list=%v", list)
	}

	now = now.Add(6 * time.Minute)
	if _, err := st.Add(ctx, "fresh", inflammation, []kg.Category{kg.CategoryGene}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := len(st.spaces); n != 2 {
		t.Fatalf("spaces=%d want 2 (active, fresh)", n)
	}
	if list, _ := st.List(ctx, "idle-0"); len(list) != 0 {
		t.Fatalf("expired space still listed: %v", list)
	}

	now = now.Add(11 * time.Minute)
	if _, ok, _ := st.Consume(ctx, "active", 1); ok {
		t.Fatalf("expired candidate consumed")
	}
	if n := len(st.spaces); n != 0 {
		t.Fatalf("spaces=%d want 0", n)
	}
}

func TestDiscoverStoreFailure(t *testing.T) {
	t.Parallel()

	g := testGraph()
	g.Err = errors.New("down")
	sp := NewSpace(NewMemoryStore(0), g, 30, nil)
	if _, err := sp.Discover(context.Background(), "conv", []kg.Entity{fishOil}); !errors.Is(err, kg.ErrStoreUnavailable) {
		t.Fatalf("err=%v", err)
	}
}

func TestItems(t *testing.T) {
	t.Parallel()

	items := Items([]Candidate{{ID: 7, AnchorName: "Fish Oil", Category: kg.CategoryGene}})
	if len(items) != 1 || items[0].ID != 7 || items[0].Text != "Fish Oil and Gene" {
		t.Fatalf("items=%+v", items)
	}
}

func TestSuggestDiversity(t *testing.T) {
	t.Parallel()

	g := kgtest.New().
		AddNode("H", "Fish Oil", kg.CategorySupplement).
		AddNode("D1", "Depression", kg.CategoryDisease).
		AddNode("D2", "Arthritis", kg.CategoryDisease).
		AddNode("D3", "Asthma", kg.CategoryDisease).
		AddNode("G1", "IL6", kg.CategoryGene)
	for i := 0; i < 3; i++ {
		g.AddEdge("H", "D1", "TREATS", fmt.Sprint("d1-", i))
		g.AddEdge("H", "D2", "TREATS", fmt.Sprint("d2-", i))
		g.AddEdge("H", "D3", "TREATS", fmt.Sprint("d3-", i))
	}
	g.AddEdge("H", "G1", "AFFECTS", "g1")

	got, err := Suggest(context.Background(), g, SuggestRequest{Head: "fish oil", K: 3, PerTypeCap: 1})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d", len(got))
	}
	// One per category first (Disease, Gene), then top-up from the pool.
	if got[0].Tail.Name != "Arthritis" || got[1].Tail.Name != "IL6" || got[2].Tail.Name != "Asthma" {
		t.Fatalf("order=%s,%s,%s", got[0].Tail.Name, got[1].Tail.Name, got[2].Tail.Name)
	}
	if got[0].Text != "Show me more about Fish Oil and Arthritis" || got[0].Count != 3 || got[0].Source != "1-hop" {
		t.Fatalf("got[0]=%+v", got[0])
	}

	got, err = Suggest(context.Background(), g, SuggestRequest{Head: "Fish Oil", Whitelist: []string{"affects"}, Exclude: []string{"il6"}})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("filters ignored: %+v", got)
	}

	if _, err := Suggest(context.Background(), g, SuggestRequest{Head: " "}); !errors.Is(err, ErrHeadRequired) {
		t.Fatalf("err=%v", err)
	}
}
