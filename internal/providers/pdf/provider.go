// Package pdf renders purchase receipts with maroto.
package pdf

import (
	"context"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error)
}

type ReceiptData struct {
	Number   string
	DatePaid string
	BuyerID  string
	Status   string
	Items    []ReceiptItem
	Credits  int64
	Total    string
}

type ReceiptItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}
