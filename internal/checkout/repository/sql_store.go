package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"gorm.io/gorm"
)

const sessionColumns = `id, user_id, mode, client, amount, currency, price_id,
	payment_intent_client_secret, ephemeral_key_secret, customer, error_message,
	created_at, updated_at`

type sqlStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) domain.SessionStore {
	return &sqlStore{db: db}
}

func (s *sqlStore) Create(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return gorm.ErrInvalidData
	}
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO checkout_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', '', '', '', ?, ?)`,
		session.ID,
		session.UserID,
		session.Mode,
		session.Client,
		session.Amount,
		session.Currency,
		session.PriceID,
		session.CreatedAt,
		session.UpdatedAt,
	).Error
}

func (s *sqlStore) Get(ctx context.Context, userID string, id snowflake.ID) (*domain.Session, error) {
	var item domain.Session
	err := s.db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+`
		 FROM checkout_sessions
		 WHERE user_id = ? AND id = ?
		 LIMIT 1`,
		userID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (s *sqlStore) ListPending(ctx context.Context, limit int) ([]domain.Session, error) {
	var items []domain.Session
	err := s.db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+`
		 FROM checkout_sessions
		 WHERE payment_intent_client_secret = '' AND error_message = ''
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *sqlStore) Fulfill(ctx context.Context, userID string, id snowflake.ID, secrets domain.Secrets) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET payment_intent_client_secret = ?, ephemeral_key_secret = ?, customer = ?, updated_at = ?
		 WHERE user_id = ? AND id = ? AND payment_intent_client_secret = '' AND error_message = ''`,
		secrets.PaymentIntent,
		secrets.EphemeralKey,
		secrets.Customer,
		time.Now().UTC(),
		userID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *sqlStore) Fail(ctx context.Context, userID string, id snowflake.ID, message string) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE checkout_sessions
		 SET error_message = ?, updated_at = ?
		 WHERE user_id = ? AND id = ? AND payment_intent_client_secret = ''`,
		message,
		time.Now().UTC(),
		userID,
		id,
	).Error
}
