// Package firestoreclient opens the Firestore client used by the document
// backends when DOCUMENT_BACKEND=firestore.
package firestoreclient

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("firestore",
	fx.Provide(New),
)

// New returns nil when the Firestore backend is not selected.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*firestore.Client, error) {
	if cfg.DocumentBackend != config.BackendFirestore {
		return nil, nil
	}
	if cfg.Firestore.ProjectID == "" {
		return nil, errors.New("FIRESTORE_PROJECT_ID is required for the firestore document backend")
	}

	client, err := firestore.NewClient(context.Background(), cfg.Firestore.ProjectID)
	if err != nil {
		return nil, err
	}
	log.Info("firestore client ready", zap.String("project_id", cfg.Firestore.ProjectID))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
