package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("user_id", "u-1"),
		attribute.String("mode", "payment"),
		attribute.String("outcome", "ready"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("user_id must not be exported as a label")
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordCheckoutSession(context.Background(), "payment", "ready")
	m.RecordReconcile(context.Background(), "success", 3)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "carbonmarket"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordPurchaseRequest(context.Background(), "recorded")
	m.RecordPollAttempt(context.Background(), "checkout_session")
}
