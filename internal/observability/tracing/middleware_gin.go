package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/carbonmarket/internal/observability/context"
	"github.com/smallbiznis/carbonmarket/internal/usercontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HeaderCorrelationID lets a client tie its checkout, purchase and resolve
// calls together. Purchase events carry the same id to the reconciler.
const HeaderCorrelationID = "X-Correlation-ID"

// GinMiddleware opens a server span per request and seeds the correlation id.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("carbonmarket/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if incoming := strings.TrimSpace(c.GetHeader(HeaderCorrelationID)); incoming != "" {
			ctx = ContextWithCorrelationID(ctx, incoming)
		}
		ctx, correlationID := EnsureCorrelationID(ctx)
		c.Header(HeaderCorrelationID, correlationID)

		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		members := []baggage.Member{}
		if m, err := baggage.NewMember("correlation_id", correlationID); err == nil {
			members = append(members, m)
		}
		requestID := obscontext.RequestIDFromContext(ctx)
		if requestID != "" {
			if m, err := baggage.NewMember("request_id", requestID); err == nil {
				members = append(members, m)
			}
		}
		if bag, err := baggage.New(members...); err == nil {
			ctx = baggage.ContextWithBaggage(ctx, bag)
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
			attribute.String("correlation_id", correlationID),
		}
		if requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		// UserRequired runs after this middleware and swaps the request context.
		if userID, ok := usercontext.UserIDFromContext(c.Request.Context()); ok {
			attrs = append(attrs, attribute.String("enduser.id", userID))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited")
		}
	}
}
