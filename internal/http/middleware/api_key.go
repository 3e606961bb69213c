package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/kgchat-backend/internal/embedding"
)

const headerOpenAIKey = "X-OpenAI-Key"

// EmbeddingKey forwards a caller-supplied embedding API key (X-OpenAI-Key, or a Bearer
// Authorization header) to the embedding client for this request only.
func EmbeddingKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerOpenAIKey))
		if key == "" {
			if v, ok := strings.CutPrefix(strings.TrimSpace(c.GetHeader("Authorization")), "Bearer "); ok {
				key = strings.TrimSpace(v)
			}
		}
		if key != "" {
			c.Request = c.Request.WithContext(embedding.WithAPIKey(c.Request.Context(), key))
		}
		c.Next()
	}
}
