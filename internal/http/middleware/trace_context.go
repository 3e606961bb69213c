package middleware

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/kgchat-backend/internal/platform/ctxutil"
)

const (
	headerTraceID        = "X-Trace-Id"
	headerRequestID      = "X-Request-Id"
	headerConversationID = "X-Conversation-Id"

	maxClientIDLen = 128
)

// AttachTraceContext resolves the request, trace and conversation ids for a request and stores
// them as ctxutil.TraceData. Client-supplied ids are accepted only when short and printable.
// The trace id prefers the otelgin span, so it must run after otelgin. Request and trace ids are
// echoed as response headers and tagged on the span.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span := trace.SpanFromContext(ctx)

		td := &ctxutil.TraceData{
			RequestID:      clientID(c.GetHeader(headerRequestID)),
			TraceID:        clientID(c.GetHeader(headerTraceID)),
			ConversationID: clientID(c.GetHeader(headerConversationID)),
		}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		if td.TraceID == "" && span.SpanContext().HasTraceID() {
			td.TraceID = span.SpanContext().TraceID().String()
		}
		if td.TraceID == "" {
			td.TraceID = uuid.NewString()
		}

		span.SetAttributes(attribute.String("kgchat.request_id", td.RequestID))
		if td.ConversationID != "" {
			span.SetAttributes(attribute.String("kgchat.conversation_id", td.ConversationID))
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, td))
		c.Set("request_id", td.RequestID)
		c.Set("trace_id", td.TraceID)
		h := c.Writer.Header()
		h.Set(headerRequestID, td.RequestID)
		h.Set(headerTraceID, td.TraceID)
		c.Next()
	}
}

// clientID trims v and drops it when it is too long or holds non-printable runes.
func clientID(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > maxClientIDLen {
		return ""
	}
	for _, r := range v {
		if !unicode.IsPrint(r) {
			return ""
		}
	}
	return v
}
