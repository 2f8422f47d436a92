// Package tracing propagates trace IDs through logs, eXist-db requests and events.
package tracing

import (
	"context"
	"net/http"

	"github.com/birdie-ai/xmlstore/slog"
	"github.com/google/uuid"
)

// Header is the HTTP header that carries the trace ID.
const Header = "traceparent"

// Start returns a context with a new trace ID, unless ctx already has one.
// The trace ID is returned too.
func Start(ctx context.Context) (context.Context, string) {
	if traceID, ok := CtxGetTraceID(ctx); ok {
		return ctx, traceID
	}
	traceID := uuid.NewString()
	return CtxWithTraceID(ctx, traceID), traceID
}

// CtxWithTraceID creates a new [context.Context] with the given trace ID associated with it.
// The logger of the new context (see [slog.FromCtx]) has the "trace_id" attribute.
// Call [CtxGetTraceID] to retrieve the trace ID.
func CtxWithTraceID(ctx context.Context, traceID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return slog.NewContext(ctx, slog.FromCtx(ctx).With("trace_id", traceID))
}

// CtxGetTraceID gets the trace ID associated with this context.
// Return the trace ID and true if there is a trace ID, empty and false otherwise.
func CtxGetTraceID(ctx context.Context) (string, bool) {
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok && traceID != ""
}

// SetHeader sets the [Header] of the request with the trace ID of ctx, if any.
func SetHeader(ctx context.Context, req *http.Request) {
	if traceID, ok := CtxGetTraceID(ctx); ok {
		req.Header.Set(Header, traceID)
	}
}

// key is the type used to store data on contexts.
type key int

const traceIDKey key = iota
