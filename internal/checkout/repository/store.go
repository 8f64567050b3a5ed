package repository

import (
	"cloud.google.com/go/firestore"
	"github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParams struct {
	fx.In

	Cfg       config.Config
	DB        *gorm.DB
	Log       *zap.Logger
	Firestore *firestore.Client `optional:"true"`
}

// NewStore picks the session backend from config. Firestore falls back to
// SQL when no client is available.
func NewStore(p StoreParams) domain.SessionStore {
	if p.Cfg.DocumentBackend == config.BackendFirestore {
		if p.Firestore != nil {
			return NewFirestoreStore(p.Firestore)
		}
		p.Log.Warn("firestore document backend requested without a client, using sql")
	}
	return NewSQLStore(p.DB)
}
