package requestctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "orderdesk.requestctx.logger"
	traceKey  contextKey = "orderdesk.requestctx.trace"
	actorKey  contextKey = "orderdesk.requestctx.actor"
	opKey     contextKey = "orderdesk.requestctx.operation"
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace metadata of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request logger, or a no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace id of the request, if any.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithActor records the operator name written into order history as updatedBy.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	if op := OperationFrom(ctx); op != nil {
		op.setActor(actor)
	}
	return context.WithValue(ctx, actorKey, actor)
}

// Actor returns the operator name set by the auth middleware, or "".
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// Operation is shared by every context derived from one request. Values set
// deep in the chain (the operator chosen by auth) stay readable by the access
// log and server span that wrap it.
type Operation struct {
	mu    sync.Mutex
	actor string
}

// WithOperation attaches an Operation unless ctx already carries one.
func WithOperation(ctx context.Context) (context.Context, *Operation) {
	if ctx == nil {
		ctx = context.Background()
	}
	if op := OperationFrom(ctx); op != nil {
		return ctx, op
	}
	op := &Operation{}
	return context.WithValue(ctx, opKey, op), op
}

func OperationFrom(ctx context.Context) *Operation {
	if ctx == nil {
		return nil
	}
	op, _ := ctx.Value(opKey).(*Operation)
	return op
}

// Actor returns the operator recorded for the request, or "".
func (o *Operation) Actor() string {
	if o == nil {
		return ""
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.actor
}

func (o *Operation) setActor(actor string) {
	o.mu.Lock()
	o.actor = actor
	o.mu.Unlock()
}
