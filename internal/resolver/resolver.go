// Package resolver maps free-text mentions onto canonical KG nodes by embedding similarity.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/embedding"
	"github.com/yungbote/kgchat-backend/internal/index"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

// ErrEmbeddingUnavailable fails a whole strict batch when the embedding backend cannot answer.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

var tracer = otel.Tracer("github.com/yungbote/kgchat-backend/internal/resolver")

type Mode int

const (
	// Strict embeds live and fails the batch on backend errors.
	Strict Mode = iota
	// Lookup never fails: exact index names match with score 1, and an unavailable index or
	// backend yields no match with score 0 for the rest.
	Lookup
)

func (m Mode) String() string {
	if m == Lookup {
		return "lookup"
	}
	return "strict"
}

// Match is the outcome for one mention. ID and Name are empty when Matched is false; Score is
// the best similarity seen either way.
type Match struct {
	Mention string  `json:"mention"`
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
	Score   float64 `json:"score"`
	Matched bool    `json:"matched"`
}

type Resolver struct {
	emb    embedding.Embedder
	idx    *index.Loader
	strict float64
	lookup float64
	log    *logger.Logger
}

func New(emb embedding.Embedder, idx *index.Loader, cfg config.ResolverConfig, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{
		emb:    emb,
		idx:    idx,
		strict: cfg.MatchThreshold,
		lookup: cfg.LookupThreshold,
		log:    log.With("component", "EntityResolver"),
	}
}

func (r *Resolver) Threshold(mode Mode) float64 {
	if mode == Lookup {
		return r.lookup
	}
	return r.strict
}

// Resolve returns one Match per mention in input order. All non-blank distinct mentions are
// embedded with a single batch call; an empty input makes no call. In Lookup mode, mentions
// naming an indexed node exactly are left out of the batch.
func (r *Resolver) Resolve(ctx context.Context, mentions []string, mode Mode) ([]Match, error) {
	if len(mentions) == 0 {
		return []Match{}, nil
	}

	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("resolver.mode", mode.String()),
		attribute.Int("resolver.mentions", len(mentions)),
	)

	ix, err := r.idx.Get(ctx)
	if err != nil {
		if mode == Lookup {
			r.log.Warn("index unavailable, lookup degrades to no match", "error", err)
			return unmatched(mentions), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var exact map[int]index.Hit
	if mode == Lookup {
		exact = exactNames(ix, mentions)
	}
	batch, slot := batchOf(mentions, exact)
	var vecs [][]float32
	if len(batch) > 0 {
		vecs, err = r.emb.Embed(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		if err != nil {
			if mode == Lookup {
				r.log.Warn("embedding failed, lookup degrades to no match", "error", err)
				return withExact(unmatched(mentions), exact), nil
			}
			err = fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	out, err := r.match(ix, mentions, slot, vecs, mode)
	if err != nil {
		if mode == Lookup {
			return withExact(unmatched(mentions), exact), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out = withExact(out, exact)
	span.SetAttributes(attribute.Int("resolver.matched", countMatched(out)))
	return out, nil
}

func (r *Resolver) match(ix *index.Index, mentions []string, slot []int, vecs [][]float32, mode Mode) ([]Match, error) {
	thr := r.Threshold(mode)
	out := make([]Match, len(mentions))
	for i, m := range mentions {
		out[i] = Match{Mention: m}
		if slot[i] < 0 {
			continue
		}
		hit, err := ix.Nearest(vecs[slot[i]])
		if err != nil {
			return nil, err
		}
		out[i].Score = hit.Score
		if hit.Score > thr {
			out[i].ID = hit.ID
			out[i].Name = hit.Name
			out[i].Matched = true
		}
	}
	return out, nil
}

// exactNames finds mentions that equal an indexed name, case-insensitively. Those skip the
// embedding batch.
func exactNames(ix *index.Index, mentions []string) map[int]index.Hit {
	var out map[int]index.Hit
	for i, m := range mentions {
		hit, ok := ix.LookupName(m)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[int]index.Hit)
		}
		out[i] = hit
	}
	return out
}

func withExact(ms []Match, exact map[int]index.Hit) []Match {
	for i, hit := range exact {
		ms[i] = Match{Mention: ms[i].Mention, ID: hit.ID, Name: hit.Name, Score: hit.Score, Matched: true}
	}
	return ms
}

// batchOf dedupes trimmed, non-blank mentions not already in skip. slot[i] is the batch
// position for mentions[i], or -1 when it is not embedded.
func batchOf(mentions []string, skip map[int]index.Hit) ([]string, []int) {
	seen := make(map[string]int, len(mentions))
	batch := make([]string, 0, len(mentions))
	slot := make([]int, len(mentions))
	for i, m := range mentions {
		m = strings.TrimSpace(m)
		if _, ok := skip[i]; ok || m == "" {
			slot[i] = -1
			continue
		}
		if j, ok := seen[m]; ok {
			slot[i] = j
			continue
		}
		seen[m] = len(batch)
		slot[i] = len(batch)
		batch = append(batch, m)
	}
	return batch, slot
}

func unmatched(mentions []string) []Match {
	out := make([]Match, len(mentions))
	for i, m := range mentions {
		out[i] = Match{Mention: m}
	}
	return out
}

func countMatched(ms []Match) int {
	n := 0
	for _, m := range ms {
		if m.Matched {
			n++
		}
	}
	return n
}
