package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sessionsCollection = "checkout_sessions"

// sessionDoc is the document shape the payment extension reads and writes.
type sessionDoc struct {
	UserID   string  `firestore:"userId"`
	Client   string  `firestore:"client"`
	Mode     string  `firestore:"mode"`
	Amount   *int64  `firestore:"amount,omitempty"`
	Currency *string `firestore:"currency,omitempty"`
	Price    *string `firestore:"price,omitempty"`

	PaymentIntentClientSecret string `firestore:"paymentIntentClientSecret"`
	EphemeralKeySecret        string `firestore:"ephemeralKeySecret"`
	Customer                  string `firestore:"customer"`
	Error                     string `firestore:"error"`

	Created time.Time `firestore:"created"`
	Updated time.Time `firestore:"updated"`
}

type firestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) domain.SessionStore {
	return &firestoreStore{client: client}
}

// SessionPath is the document path of a session: users/{uid}/checkout_sessions/{id}.
func SessionPath(userID string, id snowflake.ID) string {
	return fmt.Sprintf("users/%s/%s/%s", userID, sessionsCollection, id.String())
}

func (s *firestoreStore) ref(userID string, id snowflake.ID) *firestore.DocumentRef {
	return s.client.Doc(SessionPath(userID, id))
}

func (s *firestoreStore) Create(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return errors.New("checkout session is required")
	}
	_, err := s.ref(session.UserID, session.ID).Create(ctx, sessionDoc{
		UserID:   session.UserID,
		Client:   session.Client,
		Mode:     string(session.Mode),
		Amount:   session.Amount,
		Currency: session.Currency,
		Price:    session.PriceID,
		Created:  session.CreatedAt,
		Updated:  session.UpdatedAt,
	})
	return err
}

func (s *firestoreStore) Get(ctx context.Context, userID string, id snowflake.ID) (*domain.Session, error) {
	snap, err := s.ref(userID, id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(snap, id)
}

func (s *firestoreStore) ListPending(ctx context.Context, limit int) ([]domain.Session, error) {
	snaps, err := s.client.CollectionGroup(sessionsCollection).
		Where("paymentIntentClientSecret", "==", "").
		Where("error", "==", "").
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Session, 0, len(snaps))
	for _, snap := range snaps {
		id, err := snowflake.ParseString(snap.Ref.ID)
		if err != nil {
			continue
		}
		session, err := decodeSession(snap, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	return out, nil
}

func (s *firestoreStore) Fulfill(ctx context.Context, userID string, id snowflake.ID, secrets domain.Secrets) (bool, error) {
	ref := s.ref(userID, id)
	applied := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = false
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.PaymentIntentClientSecret != "" || doc.Error != "" {
			return nil
		}
		applied = true
		return tx.Update(ref, []firestore.Update{
			{Path: "paymentIntentClientSecret", Value: secrets.PaymentIntent},
			{Path: "ephemeralKeySecret", Value: secrets.EphemeralKey},
			{Path: "customer", Value: secrets.Customer},
			{Path: "updated", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *firestoreStore) Fail(ctx context.Context, userID string, id snowflake.ID, message string) error {
	_, err := s.ref(userID, id).Update(ctx, []firestore.Update{
		{Path: "error", Value: message},
		{Path: "updated", Value: time.Now().UTC()},
	})
	return err
}

func decodeSession(snap *firestore.DocumentSnapshot, id snowflake.ID) (*domain.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode checkout session %s: %w", id, err)
	}
	userID := doc.UserID
	if userID == "" && snap.Ref.Parent != nil && snap.Ref.Parent.Parent != nil {
		userID = snap.Ref.Parent.Parent.ID
	}
	return &domain.Session{
		ID:                        id,
		UserID:                    userID,
		Mode:                      domain.Mode(doc.Mode),
		Client:                    doc.Client,
		Amount:                    doc.Amount,
		Currency:                  doc.Currency,
		PriceID:                   doc.Price,
		PaymentIntentClientSecret: doc.PaymentIntentClientSecret,
		EphemeralKeySecret:        doc.EphemeralKeySecret,
		Customer:                  doc.Customer,
		ErrorMessage:              doc.Error,
		CreatedAt:                 doc.Created,
		UpdatedAt:                 doc.Updated,
	}, nil
}
