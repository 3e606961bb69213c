package recommend

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/relation"
)

var ErrHeadRequired = errors.New("head (node name) is required")

type SuggestRequest struct {
	Head       string   `json:"head"`
	K          int      `json:"k"`
	Whitelist  []string `json:"whitelist"`
	Exclude    []string `json:"exclude"`
	PerTypeCap int      `json:"per_type_cap"`
}

type SuggestNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category kg.Category `json:"category,omitempty"`
}

type Suggestion struct {
	Text     string      `json:"text"`
	Head     SuggestNode `json:"head"`
	Relation string      `json:"relation"`
	Tail     SuggestNode `json:"tail"`
	Count    int         `json:"count"`
	Source   string      `json:"source"`
}

// Suggest ranks 1-hop neighbours of the node named req.Head by evidence count and picks up to K,
// spreading picks across tail categories before topping up from the rest of the pool.
func Suggest(ctx context.Context, graph kg.Store, req SuggestRequest) ([]Suggestion, error) {
	head := strings.TrimSpace(req.Head)
	if head == "" {
		return nil, ErrHeadRequired
	}
	k := req.K
	if k <= 0 {
		k = 5
	}
	perCap := req.PerTypeCap
	if perCap <= 0 {
		perCap = 2
	}
	whitelist := make([]string, 0, len(req.Whitelist))
	for _, w := range req.Whitelist {
		if c := relation.Normalize(w); c != "" {
			whitelist = append(whitelist, c)
		}
	}

	rows, err := graph.RankedNeighbors(ctx, head, kg.NeighborQuery{
		Whitelist: whitelist,
		Exclude:   req.Exclude,
		Limit:     max(6*k, 30),
	})
	if err != nil {
		return nil, err
	}

	picked := pickDiverse(rows, k, perCap)
	out := make([]Suggestion, 0, len(picked))
	for _, r := range picked {
		out = append(out, Suggestion{
			Text:     "Show me more about " + r.HeadName + " and " + r.TailName,
			Head:     SuggestNode{ID: r.HeadID, Name: r.HeadName},
			Relation: r.Relation,
			Tail:     SuggestNode{ID: r.TailID, Name: r.TailName, Category: r.TailCategory},
			Count:    r.Evidence,
			Source:   "1-hop",
		})
	}
	return out, nil
}

// pickDiverse round-robins across tail categories (first-seen order) with at most perCap picks
// each, then fills remaining slots from the pool in rank order.
func pickDiverse(rows []kg.NeighborRow, k, perCap int) []kg.NeighborRow {
	var order []kg.Category
	buckets := map[kg.Category][]int{}
	for i, r := range rows {
		if _, ok := buckets[r.TailCategory]; !ok {
			order = append(order, r.TailCategory)
		}
		buckets[r.TailCategory] = append(buckets[r.TailCategory], i)
	}

	used := make([]bool, len(rows))
	counts := map[kg.Category]int{}
	var picked []kg.NeighborRow
	for len(picked) < k {
		progressed := false
		for _, c := range order {
			if counts[c] >= perCap || len(buckets[c]) == 0 {
				continue
			}
			i := buckets[c][0]
			buckets[c] = buckets[c][1:]
			used[i] = true
			counts[c]++
			picked = append(picked, rows[i])
			progressed = true
			if len(picked) >= k {
				break
			}
		}
		if !progressed {
			break
		}
	}

	for i := 0; i < len(rows) && len(picked) < k; i++ {
		if !used[i] {
			used[i] = true
			picked = append(picked, rows[i])
		}
	}
	return picked
}
