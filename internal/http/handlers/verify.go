package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/http/response"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/apierr"
	"github.com/yungbote/kgchat-backend/internal/verify"
)

var (
	errTriplesList  = errors.New("triples must be a list of [head, relation, tail]")
	errNameRequired = errors.New("name query param required")
)

type TripleVerifier interface {
	Verify(ctx context.Context, triples []kg.Triple) ([]verify.Result, error)
}

type VerifyHandler struct {
	verifier TripleVerifier
}

func NewVerifyHandler(v TripleVerifier) *VerifyHandler {
	return &VerifyHandler{verifier: v}
}

// POST /api/verify
func (h *VerifyHandler) Verify(c *gin.Context) {
	var req struct {
		Triples json.RawMessage `json:"triples"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(err))
		return
	}
	var triples []wireTriple
	if len(req.Triples) > 0 {
		if err := json.Unmarshal(req.Triples, &triples); err != nil {
			fail(c, apierr.BadRequest(errTriplesList))
			return
		}
	}

	results, err := h.verifier.Verify(c.Request.Context(), toTriples(triples))
	if err != nil {
		fail(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": results})
}
