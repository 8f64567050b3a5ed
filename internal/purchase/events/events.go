// Package events announces newly recorded purchase requests to the
// reconciler, either in-process or over Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypeRequestCreated = "purchase_request.created"

	headerEventType     = "event_type"
	headerCorrelationID = "correlation_id"
)

// RequestCreated is published after a pending request is written.
type RequestCreated struct {
	RequestID     string    `json:"request_id"`
	UserID        string    `json:"user_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (e RequestCreated) ID() (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(e.RequestID))
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q: %w", e.RequestID, err)
	}
	return id, nil
}

type Publisher interface {
	PublishCreated(ctx context.Context, event RequestCreated) error
}

// Processor settles one purchase request. It must tolerate redelivery.
type Processor interface {
	Process(ctx context.Context, requestID snowflake.ID) error
}

func encode(event RequestCreated) ([]byte, error) {
	return json.Marshal(event)
}

func decode(payload []byte) (RequestCreated, snowflake.ID, error) {
	var event RequestCreated
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, 0, err
	}
	id, err := event.ID()
	if err != nil {
		return event, 0, err
	}
	return event, id, nil
}
