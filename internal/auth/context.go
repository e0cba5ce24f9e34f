package auth

import "context"

type contextKey string

const contextKeyCaller contextKey = "auth.caller"

// WithCaller stores the authenticated caller address in context.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, contextKeyCaller, caller)
}

// CallerFromContext extracts the caller address from context.
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if caller, ok := ctx.Value(contextKeyCaller).(string); ok {
		return caller
	}
	return ""
}
