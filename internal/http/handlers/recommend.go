package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/http/response"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/apierr"
	"github.com/yungbote/kgchat-backend/internal/recommend"
)

type RecommendHandler struct {
	graph kg.Store
}

func NewRecommendHandler(graph kg.Store) *RecommendHandler {
	return &RecommendHandler{graph: graph}
}

// POST /api/recommend
func (h *RecommendHandler) Recommend(c *gin.Context) {
	var req recommend.SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(err))
		return
	}
	suggestions, err := recommend.Suggest(c.Request.Context(), h.graph, req)
	if err != nil {
		fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"resolved_head": strings.TrimSpace(req.Head),
		"suggestions":   suggestions,
	})
}
