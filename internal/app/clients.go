package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/kgchat-backend/internal/config"
	"github.com/yungbote/kgchat-backend/internal/embedding"
	"github.com/yungbote/kgchat-backend/internal/index"
	"github.com/yungbote/kgchat-backend/internal/kg/neo4jstore"
	"github.com/yungbote/kgchat-backend/internal/observability"
	"github.com/yungbote/kgchat-backend/internal/platform/gcp"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
	"github.com/yungbote/kgchat-backend/internal/platform/neo4jdb"
	"github.com/yungbote/kgchat-backend/internal/platform/redisdb"
	"github.com/yungbote/kgchat-backend/internal/platform/sqldb"
)

// Clients holds the process-wide connections. Optional ones stay nil when not configured.
type Clients struct {
	Neo4j    *neo4jdb.Client
	Graph    *neo4jstore.Store
	Redis    *goredis.Client
	SQL      *gorm.DB
	GCS      *storage.Client
	Embedder embedding.Embedder
	Source   index.Source
}

func wireClients(ctx context.Context, cfg *config.Config, log *logger.Logger) (c Clients, err error) {
	defer func() {
		if err != nil {
			c.close(context.Background(), log)
		}
	}()

	c.Neo4j, err = neo4jdb.New(cfg.Neo4j, log)
	if err != nil {
		return c, fmt.Errorf("init neo4j: %w", err)
	}
	if c.Neo4j == nil {
		return c, fmt.Errorf("init neo4j: neo4j.uri is required")
	}
	c.Graph, err = neo4jstore.New(c.Neo4j, log)
	if err != nil {
		return c, err
	}

	if cfg.Redis.Addr != "" {
		c.Redis, err = redisdb.New(cfg.Redis, log)
		if err != nil {
			return c, fmt.Errorf("init redis: %w", err)
		}
	}

	c.Embedder, err = embedding.New(cfg.Embedding)
	if err != nil {
		return c, fmt.Errorf("init embedder: %w", err)
	}

	switch cfg.Index.Source {
	case "gcs":
		c.GCS, err = gcp.NewStorageClient(ctx)
		if err != nil {
			return c, fmt.Errorf("init gcs: %w", err)
		}
		c.Source = index.GCSSource{Client: c.GCS, Bucket: cfg.Index.Bucket, Object: cfg.Index.Object}
	case "sql":
		c.SQL, err = sqldb.Open(cfg.Index.Driver, cfg.Index.DSN, log)
		if err != nil {
			return c, fmt.Errorf("init index db: %w", err)
		}
		c.Source = index.SQLSource{DB: c.SQL, Table: cfg.Index.Table}
	default:
		c.Source = index.FileSource{Path: cfg.Index.Path}
	}
	log.Info("embedding index source configured", "source", c.Source.Describe(), "model", c.Embedder.Model())
	return c, nil
}

func (c Clients) pingers() map[string]observability.Pinger {
	out := map[string]observability.Pinger{}
	if c.Graph != nil {
		out["neo4j"] = c.Graph
	}
	if c.Redis != nil {
		out["redis"] = redisdb.Pinger(c.Redis)
	}
	return out
}

func (c Clients) close(ctx context.Context, log *logger.Logger) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if c.GCS != nil {
		if err := c.GCS.Close(); err != nil {
			log.Warn("gcs close failed", "error", err)
		}
	}
	if err := sqldb.Close(c.SQL); err != nil {
		log.Warn("sql close failed", "error", err)
	}
	if err := c.Neo4j.Close(ctx); err != nil {
		log.Warn("neo4j close failed", "error", err)
	}
}
