package app

import (
	"fmt"

	"github.com/yungbote/kgchat-backend/internal/agent"
	"github.com/yungbote/kgchat-backend/internal/config"
	httpx "github.com/yungbote/kgchat-backend/internal/http"
	httpH "github.com/yungbote/kgchat-backend/internal/http/handlers"
	"github.com/yungbote/kgchat-backend/internal/index"
	"github.com/yungbote/kgchat-backend/internal/observability"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
	"github.com/yungbote/kgchat-backend/internal/platform/redisdb"
	"github.com/yungbote/kgchat-backend/internal/recommend"
	"github.com/yungbote/kgchat-backend/internal/resolver"
	"github.com/yungbote/kgchat-backend/internal/subgraph"
	"github.com/yungbote/kgchat-backend/internal/verify"
)

type Services struct {
	Index    *index.Loader
	Resolver *resolver.Resolver
	Builder  *subgraph.Builder
	Space    *recommend.Space
	Verifier *verify.Verifier
	Agent    *agent.Agent
}

func wireServices(cfg *config.Config, log *logger.Logger, c Clients, m *observability.Metrics) (Services, error) {
	var store recommend.Store
	switch cfg.Recommend.Store {
	case "redis":
		if c.Redis == nil {
			return Services{}, fmt.Errorf("recommend.store=redis needs a redis client")
		}
		store = recommend.NewRedisStore(c.Redis, cfg.Recommend.KeyPrefix, cfg.Recommend.TTL.Duration)
	default:
		store = recommend.NewMemoryStore(cfg.Recommend.TTL.Duration)
	}

	var rec agent.Recorder
	if m != nil {
		rec = m
	}

	s := Services{Index: index.NewLoader(c.Source, log)}
	s.Resolver = resolver.New(c.Embedder, s.Index, cfg.Resolver, log)
	s.Builder = subgraph.NewBuilder(c.Graph, cfg.Subgraph, log)
	s.Space = recommend.NewSpace(store, c.Graph, cfg.Recommend.DiscoverLimit, log)
	s.Verifier = verify.New(c.Graph, s.Resolver, log)
	s.Agent = agent.New(s.Resolver, s.Builder, s.Space, c.Graph, cfg.Agent, rec, log)
	log.Info("services wired", "recommend_store", cfg.Recommend.Store, "expand_consumed", cfg.Agent.ExpandConsumed)
	return s, nil
}

func wireRouter(cfg *config.Config, log *logger.Logger, c Clients, s Services, m *observability.Metrics) httpx.RouterConfig {
	deps := httpH.HealthDeps{
		Index:  s.Index,
		Graph:  c.Graph,
		Model:  c.Embedder.Model(),
		Neo4j:  cfg.Neo4j.URI,
		Strict: s.Resolver.Threshold(resolver.Strict),
		Lookup: s.Resolver.Threshold(resolver.Lookup),
		Log:    log,
	}
	if c.Redis != nil {
		deps.Cache = redisdb.Pinger(c.Redis)
	}
	return httpx.RouterConfig{
		ServiceName:      cfg.Observability.ServiceName,
		AllowOrigins:     cfg.HTTP.AllowOrigins,
		MaxRequestBytes:  cfg.HTTP.MaxRequestBytes,
		Log:              log,
		Metrics:          m,
		DataHandler:      httpH.NewDataHandler(s.Agent),
		VerifyHandler:    httpH.NewVerifyHandler(s.Verifier),
		RecommendHandler: httpH.NewRecommendHandler(c.Graph),
		HealthHandler:    httpH.NewHealthHandler(deps),
	}
}
