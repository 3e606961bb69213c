package agent

import (
	"context"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/resolver"
	"github.com/yungbote/kgchat-backend/internal/subgraph"
)

// runTriples builds the payload for caller-supplied triples and returns the resolved entities
// in first-seen order.
//
// Pairs where both ends resolve are built first (direct, then bridge). If every such pair came
// back empty, each resolved entity contributes its neighbourhood instead. Triples with an
// unresolved end are then rendered as placeholder node and edge, after real nodes are in place
// so anchors keep their KG category.
func (a *Agent) runTriples(ctx context.Context, res *Result, triples []kg.Triple) ([]kg.Entity, error) {
	complete := make([]kg.Triple, 0, len(triples))
	raw := make([]string, 0, 2*len(triples))
	for _, t := range triples {
		if !t.Complete() {
			res.Incomplete = append(res.Incomplete, t)
			continue
		}
		complete = append(complete, t)
		raw = append(raw, t.Head, t.Tail)
	}
	if len(complete) == 0 {
		return nil, nil
	}

	byMention, err := a.resolveAll(ctx, res, distinctMentions(raw))
	if err != nil {
		return nil, err
	}
	lookup := func(s string) resolver.Match {
		s = strings.TrimSpace(s)
		if m, ok := byMention[s]; ok {
			return m
		}
		return resolver.Match{Mention: s}
	}

	var entities []kg.Entity
	seen := map[string]bool{}
	tried, hit := 0, 0
	for _, t := range complete {
		h, tl := lookup(t.Head), lookup(t.Tail)
		entities = appendEntity(entities, seen, h)
		entities = appendEntity(entities, seen, tl)
		if !h.Matched || !tl.Matched {
			continue
		}
		tried++
		tier, err := a.builder.Pair(ctx, res.Payload, h.ID, tl.ID)
		if err != nil {
			return nil, err
		}
		if tier != subgraph.TierNone {
			hit++
		}
	}
	if tried > 0 && hit == 0 {
		for _, e := range entities {
			if _, err := a.builder.Single(ctx, res.Payload, e.ID); err != nil {
				return nil, err
			}
		}
	}

	for _, t := range complete {
		h, tl := lookup(t.Head), lookup(t.Tail)
		switch {
		case h.Matched && tl.Matched:
			// built in the first pass
		case h.Matched:
			if err := a.ensureNode(ctx, res.Payload, h); err != nil {
				return nil, err
			}
			res.Payload.AddPlaceholder(tl.Mention, h.ID, t.Relation)
		case tl.Matched:
			if err := a.ensureNode(ctx, res.Payload, tl); err != nil {
				return nil, err
			}
			res.Payload.AddPlaceholder(h.Mention, tl.ID, t.Relation)
		default:
			ph := res.Payload.AddPlaceholder(h.Mention, "", "")
			res.Payload.AddPlaceholder(tl.Mention, ph.ID, t.Relation)
		}
	}
	return entities, nil
}

// runMentions visualizes bare entity mentions: one entity shows its neighbourhood, several are
// paired with each other, falling back to neighbourhoods when no pair connects.
func (a *Agent) runMentions(ctx context.Context, res *Result, mentions []string) ([]kg.Entity, error) {
	mentions = distinctMentions(mentions)
	byMention, err := a.resolveAll(ctx, res, mentions)
	if err != nil {
		return nil, err
	}

	var entities []kg.Entity
	seen := map[string]bool{}
	for _, s := range mentions {
		entities = appendEntity(entities, seen, byMention[s])
	}

	hit := 0
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			tier, err := a.builder.Pair(ctx, res.Payload, entities[i].ID, entities[j].ID)
			if err != nil {
				return nil, err
			}
			if tier != subgraph.TierNone {
				hit++
			}
		}
	}
	if hit == 0 {
		for _, e := range entities {
			if _, err := a.builder.Single(ctx, res.Payload, e.ID); err != nil {
				return nil, err
			}
		}
	}

	for _, s := range mentions {
		if m := byMention[s]; !m.Matched {
			res.Payload.AddPlaceholder(s, "", "")
		}
	}
	return entities, nil
}

// ensureNode registers a resolved entity that no query has returned yet, taking its category
// from the store when a node with the same id is found by name.
func (a *Agent) ensureNode(ctx context.Context, p *subgraph.Payload, m resolver.Match) error {
	if p.HasNode(m.ID) {
		return nil
	}
	node := kg.Node{ID: m.ID, Name: m.Name, Category: kg.CategoryUngrouped}
	if a.graph != nil {
		found, err := a.graph.FindByName(ctx, m.Name, 5)
		if err != nil {
			return err
		}
		for _, n := range found {
			if n.ID == m.ID {
				node.Category = n.Category
				break
			}
		}
	}
	p.AddNode(node)
	return nil
}
