package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts "5s"-style strings or integer nanoseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if s == "" || s == "null" || s == "~" {
		d.Duration = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d.Duration = time.Duration(n)
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\" or an int nanoseconds: %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			MaxRequestBytes:   1 << 20,
			AllowOrigins:      []string{"*"},
		},
		Neo4j: Neo4jConfig{
			User:         "neo4j",
			Timeout:      Duration{Duration: 10 * time.Second},
			MaxPoolSize:  50,
			MaxRetryTime: Duration{Duration: 5 * time.Second},
		},
		Redis: RedisConfig{
			DialTimeout: Duration{Duration: 5 * time.Second},
		},
		Embedding: EmbeddingConfig{
			Type:           "mock",
			EmbeddingsPath: "/v1/embeddings",
			Model:          "text-embedding-ada-002",
			Timeout:        Duration{Duration: 30 * time.Second},
			Dims:           64,
		},
		Index: IndexConfig{
			Source: "file",
			Path:   "ADInt_CUI_embeddings.jsonl",
			Driver: "postgres",
			Table:  "kg_node_embeddings",
		},
		Resolver: ResolverConfig{
			MatchThreshold:    0.94,
			LookupThreshold:   0.80,
			RelationThreshold: 0.94,
		},
		Subgraph: SubgraphConfig{
			DirectLimit:       20,
			BridgeLimit:       10,
			NeighborhoodLimit: 20,
		},
		Recommend: RecommendConfig{
			Store:         "memory",
			KeyPrefix:     "kgchat:rec",
			TTL:           Duration{Duration: 24 * time.Hour},
			DiscoverLimit: 30,
		},
		Observability: ObservabilityConfig{
			ServiceName: "kgchat",
		},
	}
}

// Load reads the YAML file at KGCHAT_CONFIG_PATH (or ./config/config.yaml when present),
// overlays environment variables and validates the result.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("KGCHAT_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
		// Decoding over the defaults keeps unspecified fields at their default values.
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setBool := func(name string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = parseBool(v)
		}
	}

	setString("LOG_MODE", &cfg.Env)
	setString("HTTP_ADDR", &cfg.HTTP.Addr)
	setString("NEO4J_URI", &cfg.Neo4j.URI)
	setString("NEO4J_USER", &cfg.Neo4j.User)
	setString("NEO4J_PASSWORD", &cfg.Neo4j.Password)
	setString("NEO4J_DATABASE", &cfg.Neo4j.Database)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setString("REDIS_PASSWORD", &cfg.Redis.Password)
	setString("RECOMMEND_STORE", &cfg.Recommend.Store)
	setString("EMBEDDING_TYPE", &cfg.Embedding.Type)
	setString("EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	setString("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	setString("OPENAI_EMBED_MODEL", &cfg.Embedding.Model)
	setString("INDEX_SOURCE", &cfg.Index.Source)
	setString("EMBEDDINGS_PATH", &cfg.Index.Path)
	setString("EMBEDDINGS_BUCKET", &cfg.Index.Bucket)
	setString("EMBEDDINGS_OBJECT", &cfg.Index.Object)
	setString("EMBEDDINGS_DSN", &cfg.Index.DSN)
	setFloat("ENTITY_SIM_THRESHOLD", &cfg.Resolver.MatchThreshold)
	setFloat("ENTITY_LOOKUP_THRESHOLD", &cfg.Resolver.LookupThreshold)
	setFloat("REL_EQUIV_THRESHOLD", &cfg.Resolver.RelationThreshold)
	setBool("OTEL_ENABLED", &cfg.Observability.TracingEnabled)
	setBool("METRICS_ENABLED", &cfg.Observability.MetricsEnabled)
	setBool("AGENT_EXPAND_CONSUMED", &cfg.Agent.ExpandConsumed)
}

func (cfg *Config) Validate() error {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = ":5000"
	}
	if cfg.HTTP.MaxRequestBytes <= 0 {
		cfg.HTTP.MaxRequestBytes = 1 << 20
	}

	for name, v := range map[string]float64{
		"resolver.match_threshold":    cfg.Resolver.MatchThreshold,
		"resolver.lookup_threshold":   cfg.Resolver.LookupThreshold,
		"resolver.relation_threshold": cfg.Resolver.RelationThreshold,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, v)
		}
	}

	for name, v := range map[string]*int{
		"subgraph.direct_limit":       &cfg.Subgraph.DirectLimit,
		"subgraph.bridge_limit":       &cfg.Subgraph.BridgeLimit,
		"subgraph.neighborhood_limit": &cfg.Subgraph.NeighborhoodLimit,
		"recommend.discover_limit":    &cfg.Recommend.DiscoverLimit,
	} {
		if *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}

	cfg.Embedding.Type = strings.ToLower(strings.TrimSpace(cfg.Embedding.Type))
	switch cfg.Embedding.Type {
	case "mock":
		if cfg.Embedding.Dims <= 0 {
			cfg.Embedding.Dims = 64
		}
	case "openai_http", "oai_http":
		cfg.Embedding.Type = "oai_http"
		cfg.Embedding.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Embedding.BaseURL), "/")
		if cfg.Embedding.BaseURL == "" {
			return errors.New("embedding.base_url is required for oai_http")
		}
		if strings.TrimSpace(cfg.Embedding.EmbeddingsPath) == "" {
			cfg.Embedding.EmbeddingsPath = "/v1/embeddings"
		}
		if cfg.Embedding.Timeout.Duration <= 0 {
			cfg.Embedding.Timeout = Duration{Duration: 30 * time.Second}
		}
	default:
		return fmt.Errorf("invalid embedding.type=%q", cfg.Embedding.Type)
	}

	cfg.Index.Source = strings.ToLower(strings.TrimSpace(cfg.Index.Source))
	switch cfg.Index.Source {
	case "file":
		if strings.TrimSpace(cfg.Index.Path) == "" {
			return errors.New("index.path is required for file source")
		}
	case "gcs":
		if strings.TrimSpace(cfg.Index.Bucket) == "" || strings.TrimSpace(cfg.Index.Object) == "" {
			return errors.New("index.bucket and index.object are required for gcs source")
		}
	case "sql":
		if strings.TrimSpace(cfg.Index.DSN) == "" {
			return errors.New("index.dsn is required for sql source")
		}
		switch cfg.Index.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("invalid index.driver=%q", cfg.Index.Driver)
		}
		if strings.TrimSpace(cfg.Index.Table) == "" {
			cfg.Index.Table = "kg_node_embeddings"
		}
	default:
		return fmt.Errorf("invalid index.source=%q", cfg.Index.Source)
	}

	cfg.Recommend.Store = strings.ToLower(strings.TrimSpace(cfg.Recommend.Store))
	switch cfg.Recommend.Store {
	case "", "memory":
		cfg.Recommend.Store = "memory"
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("redis.addr is required when recommend.store=redis")
		}
	default:
		return fmt.Errorf("invalid recommend.store=%q", cfg.Recommend.Store)
	}
	if cfg.Recommend.TTL.Duration < 0 {
		return errors.New("recommend.ttl must not be negative")
	}

	if cfg.Neo4j.MaxRetryTime.Duration < 0 {
		return errors.New("neo4j.max_retry_time must not be negative")
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "y", "yes", "on":
		return true
	default:
		return false
	}
}
