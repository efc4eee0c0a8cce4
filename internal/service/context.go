package service

import "context"

type contextKey string

const callerKey contextKey = "caller"

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Email  string
	Role   string
}

// WithCaller injects the caller into the context
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller retrieves the caller from the context
func GetCaller(ctx context.Context) *Caller {
	val, ok := ctx.Value(callerKey).(*Caller)
	if !ok {
		return nil
	}
	return val
}
