package config

import "time"

type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxRequestBytes   int64    `yaml:"max_request_bytes"`

	// AllowOrigins feeds the CORS middleware. "*" allows any origin without credentials.
	AllowOrigins []string `yaml:"allow_origins"`
}

type Neo4jConfig struct {
	URI         string   `yaml:"uri"`
	User        string   `yaml:"user"`
	Password    string   `yaml:"password"`
	Database    string   `yaml:"database"`
	Timeout     Duration `yaml:"timeout"`
	MaxPoolSize int      `yaml:"max_pool_size"`

	// MaxRetryTime bounds the driver's exponential backoff on transient failures.
	// Empty results are never retried.
	MaxRetryTime Duration `yaml:"max_retry_time"`
}

type RedisConfig struct {
	Addr        string   `yaml:"addr"`
	Password    string   `yaml:"password"`
	DB          int      `yaml:"db"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

type EmbeddingConfig struct {
	// Type is "oai_http" for an OpenAI-compatible /v1/embeddings server or "mock" for the
	// deterministic hash embedder used in development.
	Type           string   `yaml:"type"`
	BaseURL        string   `yaml:"base_url"`
	APIKey         string   `yaml:"api_key"`
	EmbeddingsPath string   `yaml:"embeddings_path"`
	Model          string   `yaml:"model"`
	Timeout        Duration `yaml:"timeout"`
	Dims           int      `yaml:"dims"`
}

type IndexConfig struct {
	// Source is one of "file", "gcs", "sql".
	Source string `yaml:"source"`

	// file
	Path string `yaml:"path"`

	// gcs
	Bucket string `yaml:"bucket"`
	Object string `yaml:"object"`

	// sql
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type ResolverConfig struct {
	MatchThreshold    float64 `yaml:"match_threshold"`
	LookupThreshold   float64 `yaml:"lookup_threshold"`
	RelationThreshold float64 `yaml:"relation_threshold"`
}

type SubgraphConfig struct {
	DirectLimit       int `yaml:"direct_limit"`
	BridgeLimit       int `yaml:"bridge_limit"`
	NeighborhoodLimit int `yaml:"neighborhood_limit"`
}

type RecommendConfig struct {
	// Store is "memory" or "redis".
	Store         string   `yaml:"store"`
	KeyPrefix     string   `yaml:"key_prefix"`
	TTL           Duration `yaml:"ttl"`
	DiscoverLimit int      `yaml:"discover_limit"`
}

type AgentConfig struct {
	// ExpandConsumed merges the consumed candidate's typed neighbourhood into the turn payload.
	ExpandConsumed bool `yaml:"expand_consumed"`
}

type ObservabilityConfig struct {
	ServiceName    string `yaml:"service_name"`
	Version        string `yaml:"version"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type Config struct {
	Env           string              `yaml:"env"`
	HTTP          HTTPConfig          `yaml:"http"`
	Neo4j         Neo4jConfig         `yaml:"neo4j"`
	Redis         RedisConfig         `yaml:"redis"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Index         IndexConfig         `yaml:"index"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	Subgraph      SubgraphConfig      `yaml:"subgraph"`
	Recommend     RecommendConfig     `yaml:"recommend"`
	Agent         AgentConfig         `yaml:"agent"`
	Observability ObservabilityConfig `yaml:"observability"`
}
