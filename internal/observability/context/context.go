package context

import (
	"context"
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/usercontext"
)

type requestIDKey struct{}

// WithRequestID stores the inbound request identifier.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func UserIDFromContext(ctx context.Context) string {
	userID, _ := usercontext.UserIDFromContext(ctx)
	return userID
}
