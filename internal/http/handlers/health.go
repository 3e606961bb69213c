package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/http/response"
	"github.com/yungbote/kgchat-backend/internal/index"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/apierr"
	"github.com/yungbote/kgchat-backend/internal/platform/logger"
)

const probeLimit = 5

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthDeps struct {
	Index  *index.Loader
	Graph  kg.Store
	Cache  Pinger
	Model  string
	Neo4j  string
	Strict float64
	Lookup float64
	Log    *logger.Logger
}

type HealthHandler struct {
	deps HealthDeps
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/_ping
func (h *HealthHandler) Ping(c *gin.Context) {
	response.RespondOK(c, gin.H{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}

// GET /api/_health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var st index.Status
	if h.deps.Index != nil {
		st = h.deps.Index.Status()
	}
	out := gin.H{
		"status":           "ok",
		"embeddings":       st,
		"loaded":           st.Loaded,
		"model":            h.deps.Model,
		"neo4j_uri":        h.deps.Neo4j,
		"entity_threshold": h.deps.Strict,
		"lookup_threshold": h.deps.Lookup,
		"neo4j":            check(ctx, h.deps.Graph),
	}
	if h.deps.Cache != nil {
		out["redis"] = check(ctx, h.deps.Cache)
	}
	if out["neo4j"] != "ok" || (h.deps.Cache != nil && out["redis"] != "ok") {
		out["status"] = "degraded"
		h.deps.Log.Warn("health degraded", "neo4j", out["neo4j"], "redis", out["redis"])
	}
	response.RespondOK(c, out)
}

// GET /api/_probe_node?name=
func (h *HealthHandler) ProbeNode(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		fail(c, apierr.BadRequest(errNameRequired))
		return
	}
	nodes, err := h.deps.Graph.FindByName(c.Request.Context(), name, probeLimit)
	if err != nil {
		fail(c, err)
		return
	}
	matches := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		matches = append(matches, gin.H{"id": n.ID, "name": n.Name, "category": n.Category})
	}
	response.RespondOK(c, gin.H{"matches": matches})
}

func check(ctx context.Context, p Pinger) string {
	if p == nil {
		return "unconfigured"
	}
	if err := p.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
