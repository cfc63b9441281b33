package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	traceIDKey        contextKey = "trace_id"
	deliberationIDKey contextKey = "deliberation_id"
	sessionIDKey      contextKey = "session_id"
)

// WithTraceID 设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID 获取 TraceID
func TraceID(ctx context.Context) (string, bool) {
	return lookup(ctx, traceIDKey)
}

// WithDeliberationID 设置当前审议的 ID
func WithDeliberationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliberationIDKey, id)
}

// DeliberationID 获取当前审议的 ID
func DeliberationID(ctx context.Context) (string, bool) {
	return lookup(ctx, deliberationIDKey)
}

// WithSessionID 设置成本账本使用的会话 ID
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID 获取会话 ID
func SessionID(ctx context.Context) (string, bool) {
	return lookup(ctx, sessionIDKey)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
