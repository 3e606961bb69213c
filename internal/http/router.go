package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/kgchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/kgchat-backend/internal/http/middleware"
	"github.com/yungbote/kgchat-backend/internal/observability"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName     string
	AllowOrigins    []string
	MaxRequestBytes int64
	Log             *logger.Logger
	Metrics         *observability.Metrics

	DataHandler      *httpH.DataHandler
	VerifyHandler    *httpH.VerifyHandler
	RecommendHandler *httpH.RecommendHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "kgchat"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.HealthHandler != nil {
			api.GET("/_ping", cfg.HealthHandler.Ping)
			api.GET("/_health", cfg.HealthHandler.Health)
			api.GET("/_probe_node", cfg.HealthHandler.ProbeNode)
		}
		if cfg.DataHandler != nil {
			api.POST("/data", httpMW.EmbeddingKey(), cfg.DataHandler.Data)
		}
		if cfg.VerifyHandler != nil {
			api.POST("/verify", cfg.VerifyHandler.Verify)
		}
		if cfg.RecommendHandler != nil {
			api.POST("/recommend", cfg.RecommendHandler.Recommend)
		}
	}

	return r
}
