// Package agent runs one conversation turn: resolve mentions, build the subgraph, update the
// conversation's recommendation space and assemble the reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/kgchat-backend/internal/annotation"
	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
	"github.com/yungbote/kgchat-backend/internal/recommend"
	"github.com/yungbote/kgchat-backend/internal/resolver"
	"github.com/yungbote/kgchat-backend/internal/subgraph"
)

var tracer = otel.Tracer("github.com/yungbote/kgchat-backend/internal/agent")

var ErrInvalidMode = errors.New("input_type must be new_conversation or continue_conversation")

type Mode string

const (
	ModeNew      Mode = "new_conversation"
	ModeContinue Mode = "continue_conversation"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.TrimSpace(raw)) {
	case ModeNew:
		return ModeNew, nil
	case ModeContinue:
		return ModeContinue, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

type Request struct {
	Mode           Mode
	ConversationID string
	Triples        []kg.Triple
	// RecommendationID is consumed on continue_conversation turns.
	RecommendationID *int
	// Response is an annotated assistant reply, used when Triples is empty.
	Response string
}

type Result struct {
	ConversationID  string
	Payload         *subgraph.Payload
	NameMapping     map[string]string
	Recommendations []recommend.Item
	Unmatched       []string
	Incomplete      []kg.Triple
	Consumed        *recommend.Candidate
	Question        []string
}

// Resolver is the subset of resolver.Resolver the agent needs.
type Resolver interface {
	Resolve(ctx context.Context, mentions []string, mode resolver.Mode) ([]resolver.Match, error)
}

// Recorder receives per-turn measurements. A nil Recorder is allowed.
type Recorder interface {
	ObserveTurn(mode, outcome string, elapsed time.Duration)
	ObserveResolution(matched, unmatched int)
	ObserveRecommendation(event string, n int)
}

type Agent struct {
	resolver Resolver
	builder  *subgraph.Builder
	space    *recommend.Space
	graph    kg.Store
	cfg      config.AgentConfig
	rec      Recorder
	log      *logger.Logger
}

func New(res Resolver, builder *subgraph.Builder, space *recommend.Space, graph kg.Store, cfg config.AgentConfig, rec Recorder, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.NewNop()
	}
	return &Agent{
		resolver: res,
		builder:  builder,
		space:    space,
		graph:    graph,
		cfg:      cfg,
		rec:      rec,
		log:      log.With("component", "ConversationAgent"),
	}
}

// Handle runs one turn. Resolution misses and incomplete triples are folded into the result;
// store and embedding failures abort the turn with no partial payload.
func (a *Agent) Handle(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "agent.Handle")
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if a.rec != nil {
			a.rec.ObserveTurn(string(req.Mode), outcome, time.Since(start))
		}
		span.End()
	}()

	if req.Mode != ModeNew && req.Mode != ModeContinue {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}
	conv := strings.TrimSpace(req.ConversationID)
	if conv == "" {
		conv = uuid.NewString()
	}
	span.SetAttributes(attribute.String("agent.mode", string(req.Mode)))

	res = &Result{
		ConversationID: conv,
		Payload:        subgraph.NewPayload(),
		NameMapping:    map[string]string{},
		Unmatched:      []string{},
		Incomplete:     []kg.Triple{},
		Question:       []string{},
	}

	if req.Mode == ModeNew {
		if err := a.space.Reset(ctx, conv); err != nil {
			return nil, err
		}
	}

	triples, mentions := req.Triples, []string(nil)
	if len(triples) == 0 && strings.TrimSpace(req.Response) != "" {
		parsed := annotation.Parse(req.Response)
		triples, res.Question = parsed.Triples, parsed.Question
		if len(triples) == 0 {
			mentions = parsed.Mentions()
		}
	}

	var resolved []kg.Entity
	switch {
	case len(triples) > 0:
		resolved, err = a.runTriples(ctx, res, triples)
	case len(mentions) > 0:
		resolved, err = a.runMentions(ctx, res, mentions)
	}
	if err != nil {
		return nil, err
	}

	if len(resolved) > 0 {
		n, err := a.space.Discover(ctx, conv, resolved)
		if err != nil {
			return nil, err
		}
		if a.rec != nil {
			a.rec.ObserveRecommendation("discovered", n)
		}
	}

	if req.Mode == ModeContinue && req.RecommendationID != nil {
		if err := a.consume(ctx, res, conv, *req.RecommendationID); err != nil {
			return nil, err
		}
	}

	cands, err := a.space.List(ctx, conv)
	if err != nil {
		return nil, err
	}
	res.Recommendations = recommend.Items(cands)

	span.SetAttributes(
		attribute.Int("agent.nodes", res.Payload.NodeCount()),
		attribute.Int("agent.edges", res.Payload.EdgeCount()),
		attribute.Int("agent.unmatched", len(res.Unmatched)),
		attribute.Int("agent.recommendations", len(res.Recommendations)),
	)
	a.log.Debug("turn handled",
		"conversation_id", conv,
		"mode", req.Mode,
		"nodes", res.Payload.NodeCount(),
		"edges", res.Payload.EdgeCount(),
		"unmatched", len(res.Unmatched),
		"recommendations", len(res.Recommendations),
	)
	return res, nil
}

func (a *Agent) consume(ctx context.Context, res *Result, conv string, id int) error {
	cand, ok, err := a.space.Consume(ctx, conv, id)
	if err != nil {
		return err
	}
	if !ok {
		if a.rec != nil {
			a.rec.ObserveRecommendation("consume_miss", 1)
		}
		return nil
	}
	res.Consumed = &cand
	if a.rec != nil {
		a.rec.ObserveRecommendation("consumed", 1)
	}
	if a.cfg.ExpandConsumed {
		if _, err := a.builder.Typed(ctx, res.Payload, cand.AnchorID, cand.Category); err != nil {
			return err
		}
	}
	return nil
}

// resolveAll resolves the distinct trimmed mentions with one batch call.
func (a *Agent) resolveAll(ctx context.Context, res *Result, mentions []string) (map[string]resolver.Match, error) {
	matches, err := a.resolver.Resolve(ctx, mentions, resolver.Strict)
	if err != nil {
		return nil, err
	}
	byMention := make(map[string]resolver.Match, len(matches))
	matched := 0
	for _, m := range matches {
		byMention[m.Mention] = m
		if m.Matched {
			matched++
			if _, ok := res.NameMapping[m.Name]; !ok {
				res.NameMapping[m.Name] = m.Mention
			}
		} else {
			res.Unmatched = append(res.Unmatched, m.Mention)
		}
	}
	if a.rec != nil {
		a.rec.ObserveResolution(matched, len(matches)-matched)
	}
	return byMention, nil
}

func distinctMentions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func appendEntity(list []kg.Entity, seen map[string]bool, m resolver.Match) []kg.Entity {
	if !m.Matched || seen[m.ID] {
		return list
	}
	seen[m.ID] = true
	return append(list, kg.Entity{ID: m.ID, Name: m.Name})
}
