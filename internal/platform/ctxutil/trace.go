package ctxutil

import "context"

type traceDataKey struct{}

// TraceData is attached by the trace middleware. ConversationID is filled in by handlers once
// the request body is decoded, so request logs can carry it.
type TraceData struct {
	TraceID        string
	RequestID      string
	ConversationID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// SetConversationID records id on the request's TraceData, if any.
func SetConversationID(ctx context.Context, id string) {
	if td := GetTraceData(ctx); td != nil {
		td.ConversationID = id
	}
}
