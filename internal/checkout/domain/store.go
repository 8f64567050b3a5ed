package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// SessionStore persists checkout sessions. Implementations exist for the
// SQL database and for Firestore.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	// Get returns nil, nil when the session does not exist.
	Get(ctx context.Context, userID string, id snowflake.ID) (*Session, error)
	// ListPending returns sessions that have neither secrets nor an error.
	ListPending(ctx context.Context, limit int) ([]Session, error)
	// Fulfill writes the secrets once; it reports false when the session was
	// already completed.
	Fulfill(ctx context.Context, userID string, id snowflake.ID, secrets Secrets) (bool, error)
	Fail(ctx context.Context, userID string, id snowflake.ID, message string) error
}
