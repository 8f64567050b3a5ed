package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/payment/domain"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	stripego "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// MetadataUserID is the metadata key the checkout flow stamps on every
// provider object it creates.
const MetadataUserID = "user_id"

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func NewAdapter(webhookSecret string) *Adapter {
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     webhook.DefaultTolerance,
	}
}

func (a *Adapter) Parse(payload []byte, signature string) (*domain.Event, error) {
	if a == nil || a.webhookSecret == "" {
		return nil, domain.ErrNotConfigured
	}
	if strings.TrimSpace(signature) == "" {
		return nil, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, a.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                a.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureErr(err) {
			return nil, domain.ErrInvalidSignature
		}
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, domain.ErrInvalidEvent
	}

	out := &domain.Event{
		Provider: domain.ProviderStripe,
		ID:       event.ID,
		Type:     string(event.Type),
	}
	fallback := timestamp(event.Created, 0)

	switch {
	case strings.HasPrefix(out.Type, "payment_intent."):
		var intent stripego.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Payment = parsePaymentIntent(&intent, fallback)
		out.Customer = out.Payment.Customer
	case strings.HasPrefix(out.Type, "invoice."):
		var invoice stripego.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Invoice = parseInvoice(&invoice, fallback)
		out.Customer = customerID(invoice.Customer)
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Subscription = parseSubscription(&sub, fallback)
		out.Customer = out.Subscription.Customer
	case strings.HasPrefix(out.Type, "product."):
		var product stripego.Product
		if err := json.Unmarshal(event.Data.Raw, &product); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Product = parseProduct(&product, out.Type == "product.deleted")
	case strings.HasPrefix(out.Type, "price."):
		var price stripego.Price
		if err := json.Unmarshal(event.Data.Raw, &price); err != nil {
			return nil, domain.ErrInvalidPayload
		}
		out.Price = parsePrice(&price, out.Type == "price.deleted", fallback)
	default:
		return nil, domain.ErrEventIgnored
	}

	if out.Payment != nil && out.Payment.ID == "" ||
		out.Invoice != nil && out.Invoice.ID == "" ||
		out.Subscription != nil && out.Subscription.ID == "" ||
		out.Product != nil && out.Product.ID == "" ||
		out.Price != nil && (out.Price.ID == "" || out.Price.ProductID == "") {
		return nil, domain.ErrInvalidEvent
	}
	return out, nil
}

func parsePaymentIntent(intent *stripego.PaymentIntent, fallback time.Time) *domain.Payment {
	created := timestamp(intent.Created, fallback.Unix())
	p := &domain.Payment{
		ID:        strings.TrimSpace(intent.ID),
		UserID:    readMetadata(intent.Metadata, MetadataUserID),
		Customer:  customerID(intent.Customer),
		Amount:    intent.Amount,
		Currency:  strings.ToLower(string(intent.Currency)),
		Status:    string(intent.Status),
		CreatedAt: created,
		UpdatedAt: fallback,
	}
	if intent.Invoice != nil {
		p.InvoiceID = strings.TrimSpace(intent.Invoice.ID)
	}
	return p
}

func parseInvoice(invoice *stripego.Invoice, fallback time.Time) *domain.Invoice {
	inv := &domain.Invoice{
		ID:         strings.TrimSpace(invoice.ID),
		UserID:     readMetadata(invoice.Metadata, MetadataUserID),
		Status:     string(invoice.Status),
		AmountPaid: invoice.AmountPaid,
		Currency:   strings.ToLower(string(invoice.Currency)),
		CreatedAt:  timestamp(invoice.Created, fallback.Unix()),
		UpdatedAt:  fallback,
	}
	if invoice.Subscription != nil {
		inv.SubscriptionID = strings.TrimSpace(invoice.Subscription.ID)
	}
	if invoice.PaymentIntent != nil {
		inv.PaymentIntentID = strings.TrimSpace(invoice.PaymentIntent.ID)
	}
	return inv
}

func parseSubscription(sub *stripego.Subscription, fallback time.Time) *domain.Subscription {
	out := &domain.Subscription{
		ID:        strings.TrimSpace(sub.ID),
		UserID:    readMetadata(sub.Metadata, MetadataUserID),
		Customer:  customerID(sub.Customer),
		Status:    string(sub.Status),
		CreatedAt: timestamp(sub.Created, fallback.Unix()),
		UpdatedAt: fallback,
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &end
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				out.PriceID = item.Price.ID
				break
			}
		}
	}
	return out
}

func parseProduct(product *stripego.Product, deleted bool) *productdomain.UpsertRequest {
	metadata := make(map[string]any, len(product.Metadata))
	for k, v := range product.Metadata {
		metadata[k] = v
	}
	return &productdomain.UpsertRequest{
		ID:          strings.TrimSpace(product.ID),
		Name:        strings.TrimSpace(product.Name),
		Description: strings.TrimSpace(product.Description),
		Active:      product.Active && !deleted,
		Type:        readMetadata(product.Metadata, productdomain.MetadataType),
		Images:      product.Images,
		Metadata:    metadata,
	}
}

func parsePrice(price *stripego.Price, deleted bool, fallback time.Time) *pricedomain.Price {
	out := &pricedomain.Price{
		ID:         strings.TrimSpace(price.ID),
		Currency:   strings.ToLower(string(price.Currency)),
		UnitAmount: price.UnitAmount,
		Active:     price.Active && !deleted,
		CreatedAt:  timestamp(price.Created, fallback.Unix()),
	}
	if price.Product != nil {
		out.ProductID = strings.TrimSpace(price.Product.ID)
	}
	if price.Recurring != nil && price.Recurring.Interval != "" {
		interval := string(price.Recurring.Interval)
		count := price.Recurring.IntervalCount
		if count <= 0 {
			count = 1
		}
		out.RecurringInterval = &interval
		out.RecurringIntervalCount = &count
	}
	return out
}

func isSignatureErr(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func customerID(c *stripego.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.ID)
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadata(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}
