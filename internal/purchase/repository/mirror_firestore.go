package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"go.uber.org/fx"
)

type MirrorParams struct {
	fx.In

	Cfg       config.Config
	Firestore *firestore.Client `optional:"true"`
}

// NewMirror returns a no-op mirror unless the Firestore backend is active.
func NewMirror(p MirrorParams) domain.Mirror {
	if p.Cfg.DocumentBackend != config.BackendFirestore || p.Firestore == nil {
		return nopMirror{}
	}
	return &firestoreMirror{client: p.Firestore}
}

// RequestPath is users/{uid}/requests/{id}.
func RequestPath(req *domain.PurchaseRequest) string {
	return fmt.Sprintf("users/%s/requests/%s", req.UserID, req.ID.String())
}

type firestoreMirror struct {
	client *firestore.Client
}

func (m *firestoreMirror) Put(ctx context.Context, req *domain.PurchaseRequest) error {
	var items []map[string]any
	if err := json.Unmarshal(req.Items, &items); err != nil {
		return err
	}
	_, err := m.client.Doc(RequestPath(req)).Set(ctx, map[string]any{
		"status":          string(req.Status),
		"type":            req.Type,
		"items":           items,
		"totalAmount":     req.TotalAmount,
		"currency":        req.Currency,
		"paymentIntentId": req.PaymentIntentID,
		"created":         req.CreatedAt,
	})
	return err
}

func (m *firestoreMirror) UpdateStatus(ctx context.Context, req *domain.PurchaseRequest) error {
	data := map[string]any{"status": string(req.Status)}
	if req.ErrorMessage != "" {
		data["errorMessage"] = req.ErrorMessage
	}
	if req.ProcessedAt != nil {
		data["processed"] = *req.ProcessedAt
	}
	_, err := m.client.Doc(RequestPath(req)).Set(ctx, data, firestore.MergeAll)
	return err
}

type nopMirror struct{}

func (nopMirror) Put(context.Context, *domain.PurchaseRequest) error { return nil }

func (nopMirror) UpdateStatus(context.Context, *domain.PurchaseRequest) error { return nil }
