package resolver

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
)

// Receipt flattens a resolved one-time purchase for the PDF renderer. The
// total comes from the recorded request, not from today's prices.
func Receipt(res *Resolution) (pdf.ReceiptData, bool) {
	if res == nil || res.Request == nil {
		return pdf.ReceiptData{}, false
	}
	pr := res.Request
	data := pdf.ReceiptData{
		Number:  pr.ID.String(),
		BuyerID: pr.UserID,
		Status:  string(pr.Status),
		Total:   money(pr.TotalAmount, pr.Currency),
	}
	if pr.ProcessedAt != nil {
		data.DatePaid = pr.ProcessedAt.UTC().Format("2006-01-02")
	}
	for _, item := range res.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		data.Credits += item.Quantity
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: name,
			Qty:         item.Quantity,
			UnitPrice:   money(item.UnitAmount, item.Currency),
			Amount:      money(item.UnitAmount*item.Quantity, item.Currency),
		})
	}
	return data, true
}

func money(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, strings.ToUpper(currency))
}
