// Package recommend keeps the per-conversation registry of follow-up candidates: one per
// (anchor entity, neighbour category), each with an integer id that is never reused.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

// ErrStore wraps backend failures of a Store.
var ErrStore = errors.New("recommendation store unavailable")

type Candidate struct {
	ID         int         `json:"id"`
	AnchorID   string      `json:"anchor_id"`
	AnchorName string      `json:"anchor_name"`
	Category   kg.Category `json:"category"`
}

// Text is the display form "<anchor> and <category>".
func (c Candidate) Text() string {
	return c.AnchorName + " and " + string(c.Category)
}

// Item is the wire form of a candidate.
type Item struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func Items(cands []Candidate) []Item {
	out := make([]Item, len(cands))
	for i, c := range cands {
		out[i] = Item{ID: c.ID, Text: c.Text()}
	}
	return out
}

// Store persists spaces keyed by conversation id. Implementations make each call atomic with
// respect to other calls on the same conversation.
type Store interface {
	// Reset drops every candidate of conv. The id counter is kept.
	Reset(ctx context.Context, conv string) error
	// Add creates a candidate for each category not yet present under (anchor.ID, category).
	Add(ctx context.Context, conv string, anchor kg.Entity, categories []kg.Category) (int, error)
	// List returns candidates in insertion order.
	List(ctx context.Context, conv string) ([]Candidate, error)
	// Consume removes the candidate with id, reporting whether it existed.
	Consume(ctx context.Context, conv string, id int) (Candidate, bool, error)
}

// Space runs discovery against the graph and delegates state to a Store.
type Space struct {
	store Store
	graph kg.Store
	limit int
	log   *logger.Logger
}

func NewSpace(store Store, graph kg.Store, discoverLimit int, log *logger.Logger) *Space {
	if log == nil {
		log = logger.NewNop()
	}
	if discoverLimit <= 0 {
		discoverLimit = 30
	}
	return &Space{store: store, graph: graph, limit: discoverLimit, log: log.With("component", "RecommendationSpace")}
}

func (s *Space) Reset(ctx context.Context, conv string) error {
	return s.store.Reset(ctx, conv)
}

// Discover adds a candidate per distinct neighbour category of each entity. Repeated entities
// and known (entity, category) pairs add nothing.
func (s *Space) Discover(ctx context.Context, conv string, entities []kg.Entity) (int, error) {
	seen := make(map[string]bool, len(entities))
	total := 0
	for _, e := range entities {
		id := strings.TrimSpace(e.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		cats, err := s.graph.NeighborCategories(ctx, id, s.limit)
		if err != nil {
			return total, err
		}
		if len(cats) == 0 {
			continue
		}
		n, err := s.store.Add(ctx, conv, e, cats)
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		s.log.Debug("recommendations discovered", "conversation_id", conv, "added", total)
	}
	return total, nil
}

func (s *Space) List(ctx context.Context, conv string) ([]Candidate, error) {
	return s.store.List(ctx, conv)
}

func (s *Space) Consume(ctx context.Context, conv string, id int) (Candidate, bool, error) {
	return s.store.Consume(ctx, conv, id)
}

func storeErr(op string, err error) error {
	return fmt.Errorf("recommend %s: %w: %w", op, ErrStore, err)
}
