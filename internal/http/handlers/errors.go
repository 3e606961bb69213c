package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/agent"
	"github.com/yungbote/kgchat-backend/internal/http/response"
	"github.com/yungbote/kgchat-backend/internal/index"
	"github.com/yungbote/kgchat-backend/internal/kg"
	"github.com/yungbote/kgchat-backend/internal/platform/apierr"
	"github.com/yungbote/kgchat-backend/internal/recommend"
	"github.com/yungbote/kgchat-backend/internal/resolver"
)

// classify maps domain errors onto HTTP statuses and stable codes.
func classify(err error) *apierr.Error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	switch {
	case errors.Is(err, agent.ErrInvalidMode), errors.Is(err, recommend.ErrHeadRequired):
		return apierr.BadRequest(err)
	case errors.Is(err, kg.ErrStoreUnavailable), errors.Is(err, recommend.ErrStore):
		return apierr.New(http.StatusBadGateway, apierr.CodeStoreUnavailable, err)
	case errors.Is(err, resolver.ErrEmbeddingUnavailable), errors.Is(err, index.ErrNotLoaded):
		return apierr.New(http.StatusServiceUnavailable, apierr.CodeEmbeddingUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, apierr.CodeTimeout, err)
	}
	return apierr.New(http.StatusInternalServerError, apierr.CodeInternal, err)
}

func fail(c *gin.Context, err error) {
	response.RespondAPIError(c, classify(err))
}
