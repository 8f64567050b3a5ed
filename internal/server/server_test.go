package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	cartdomain "github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"github.com/smallbiznis/carbonmarket/internal/cart/hub"
	checkoutdomain "github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"github.com/smallbiznis/carbonmarket/internal/config"
	emissionsdomain "github.com/smallbiznis/carbonmarket/internal/emissions/domain"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	paymentdomain "github.com/smallbiznis/carbonmarket/internal/payment/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeProducts struct {
	products []productdomain.Product
}

func (f *fakeProducts) ListCarbonCreditProducts(context.Context) ([]productdomain.Product, error) {
	return f.products, nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id string) (*productdomain.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeProducts) Upsert(context.Context, productdomain.UpsertRequest) error { return nil }
func (f *fakeProducts) Invalidate()                                               {}

type fakeCart struct {
	cleared []string
	items   []cartdomain.CartItem
	total   *cartdomain.Total
}

func (f *fakeCart) AddItem(_ context.Context, req cartdomain.AddItemRequest) (*cartdomain.Cart, error) {
	if req.Quantity <= 0 {
		return nil, cartdomain.ErrInvalidQuantity
	}
	f.items = append(f.items, cartdomain.CartItem{ProductID: req.ProductID, Quantity: req.Quantity})
	return &cartdomain.Cart{UserID: req.UserID, Items: f.items}, nil
}

func (f *fakeCart) IncrementItem(_ context.Context, userID, productID string) (*cartdomain.Cart, error) {
	return nil, cartdomain.ErrItemNotFound
}

func (f *fakeCart) DecrementItem(_ context.Context, userID, productID string) (*cartdomain.Cart, error) {
	return nil, cartdomain.ErrItemNotFound
}

func (f *fakeCart) Clear(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeCart) Items(_ context.Context, userID string) (*cartdomain.Cart, error) {
	return &cartdomain.Cart{UserID: userID, Items: f.items}, nil
}

func (f *fakeCart) Total(_ context.Context, userID string) (*cartdomain.Total, error) {
	if f.total == nil {
		return nil, cartdomain.ErrEmptyCart
	}
	return f.total, nil
}

func (f *fakeCart) Subscribe(context.Context, string, func(cartdomain.Cart)) (*hub.Subscription[cartdomain.Cart], error) {
	return nil, nil
}

type fakeCheckout struct {
	secrets *checkoutdomain.Secrets
	err     error
	calls   int
}

func (f *fakeCheckout) CreateOneTimeSession(context.Context, checkoutdomain.OneTimeRequest) (*checkoutdomain.Secrets, error) {
	f.calls++
	return f.secrets, f.err
}

func (f *fakeCheckout) CreateSubscriptionSession(context.Context, checkoutdomain.SubscriptionRequest) (*checkoutdomain.Secrets, error) {
	f.calls++
	return f.secrets, f.err
}

type fakePurchases struct {
	result purchasedomain.Result
	err    error
	last   purchasedomain.RecordRequest
}

func (f *fakePurchases) RequestCarbonCredits(_ context.Context, req purchasedomain.RecordRequest) (purchasedomain.Result, error) {
	f.last = req
	return f.result, f.err
}

func (f *fakePurchases) Get(context.Context, string, snowflake.ID) (*purchasedomain.PurchaseRequest, error) {
	return nil, purchasedomain.ErrNotFound
}

func (f *fakePurchases) FindByPaymentIntent(context.Context, string, string) (*purchasedomain.PurchaseRequest, error) {
	return nil, nil
}

func (f *fakePurchases) Credits(context.Context, string) ([]purchasedomain.PurchasedCredit, error) {
	return []purchasedomain.PurchasedCredit{
		{ProductID: "prod_forest", Quantity: 3},
		{ProductID: "prod_wind", Quantity: 2},
	}, nil
}

type fakeResolver struct {
	res *resolver.Resolution
	err error
}

func (f *fakeResolver) ResolvePurchase(context.Context, string, string) (*resolver.Resolution, error) {
	return f.res, f.err
}

type fakeEmissions struct{}

func (fakeEmissions) Save(_ context.Context, req emissionsdomain.SaveRequest) (*emissionsdomain.Document, error) {
	if req.Month != "2026-03" {
		return nil, emissionsdomain.ErrInvalidMonth
	}
	return &emissionsdomain.Document{UserID: req.UserID, Month: req.Month, TotalEmissions: 1.5}, nil
}

func (fakeEmissions) Get(_ context.Context, userID, month string) (*emissionsdomain.Document, error) {
	if month != "2026-03" {
		return nil, nil
	}
	return &emissionsdomain.Document{UserID: userID, Month: month, TotalEmissions: 5, TotalOffset: 2}, nil
}

func (fakeEmissions) AddOffset(context.Context, *gorm.DB, string, string, int64) error { return nil }

func (fakeEmissions) CommunityStats(context.Context) (*emissionsdomain.CommunityStats, error) {
	return &emissionsdomain.CommunityStats{UserMonths: 4, TotalEmissions: 10}, nil
}

type fakePayments struct {
	err error
}

func (f *fakePayments) IngestWebhook(context.Context, []byte, string) error { return f.err }

func (f *fakePayments) FindPayment(context.Context, string, string) (*paymentdomain.Payment, error) {
	return nil, nil
}

func (f *fakePayments) FindInvoice(context.Context, string, string) (*paymentdomain.Invoice, error) {
	return nil, nil
}

func (f *fakePayments) FindSubscription(context.Context, string, string) (*paymentdomain.Subscription, error) {
	return nil, nil
}

type testServer struct {
	*Server
	cart      *fakeCart
	checkout  *fakeCheckout
	purchases *fakePurchases
	resolver  *fakeResolver
	payments  *fakePayments
}

func newTestServer(t *testing.T, limiter *ratelimit.CheckoutLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		cart:      &fakeCart{},
		checkout:  &fakeCheckout{secrets: &checkoutdomain.Secrets{PaymentIntent: "pi_secret", EphemeralKey: "ek", Customer: "cus_1"}},
		purchases: &fakePurchases{},
		resolver:  &fakeResolver{},
		payments:  &fakePayments{},
	}
	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	ts.Server = &Server{
		engine: engine,
		log:    zap.NewNop(),
		productSvc: &fakeProducts{products: []productdomain.Product{
			{ID: "prod_forest", Name: "Forest", Active: true, Type: "carbon_credit"},
		}},
		cartSvc:         ts.cart,
		checkoutSvc:     ts.checkout,
		purchaseSvc:     ts.purchases,
		resolver:        ts.resolver,
		emissionsSvc:    fakeEmissions{},
		paymentSvc:      ts.payments,
		receipts:        pdf.New(),
		checkoutLimiter: limiter,
	}
	ts.RegisterRoutes()
	return ts
}

func (ts *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	ts.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUserRoutesRequireUserHeader(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/cart", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []productdomain.Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "prod_forest", list.Data[0].ID)

	rec = ts.do(http.MethodGet, "/api/products/prod_missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartHandlers(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{"product_id": "prod_forest", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data cartResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Data.Count)

	rec = ts.do(http.MethodPost, "/api/cart/items", "user-1", gin.H{"product_id": "prod_forest", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_quantity", decodeError(t, rec).Errors[0].Code)

	rec = ts.do(http.MethodPost, "/api/cart/items/prod_wind/increment", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/cart", "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"user-1"}, ts.cart.cleared)
}

func TestRequestCarbonCreditsClearsCart(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.purchases.result = purchasedomain.Result{Success: true, RequestID: "42"}

	rec := ts.do(http.MethodPost, "/api/purchases", "user-1", gin.H{
		"items":             []gin.H{{"id": "prod_forest", "quantity": 2}},
		"payment_intent_id": " pi_123 ",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pi_123", ts.purchases.last.PaymentReference)
	assert.Equal(t, "user-1", ts.purchases.last.UserID)
	assert.Equal(t, []string{"user-1"}, ts.cart.cleared)
	assert.JSONEq(t, `{"data":{"success":true,"requestId":"42"}}`, rec.Body.String())
}

func TestRequestCarbonCreditsValidationKeepsCart(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.purchases.result = purchasedomain.Result{Success: false, Error: purchasedomain.ErrEmptyItems.Error()}
	ts.purchases.err = purchasedomain.ErrEmptyItems

	rec := ts.do(http.MethodPost, "/api/purchases", "user-1", gin.H{"items": []gin.H{}, "payment_intent_id": "pi_123"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_items", decodeError(t, rec).Errors[0].Code)
	assert.Empty(t, ts.cart.cleared)
}

func TestCheckoutTimeoutIsRetryable(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.checkout.err = checkoutdomain.ErrSessionTimeout

	rec := ts.do(http.MethodPost, "/api/checkout/payment", "user-1", gin.H{"amount": 1000, "currency": "usd"})

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "checkout_timeout", payload.Type)
	assert.True(t, payload.Retryable)
}

func TestCartTotal(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/cart/total", "user-1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "cart_not_payable", decodeError(t, rec).Type)

	ts.cart.total = &cartdomain.Total{Amount: 2200, Currency: "usd", Count: 3}
	rec = ts.do(http.MethodGet, "/api/cart/total", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"amount":2200,"currency":"usd","count":3}}`, rec.Body.String())
}

func TestCheckoutAmountMismatchIsConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.checkout.err = fmt.Errorf("%w: client 1000, cart 2200", checkoutdomain.ErrAmountMismatch)

	rec := ts.do(http.MethodPost, "/api/checkout/payment", "user-1", gin.H{"amount": 1000})

	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "amount_mismatch", payload.Type)
	assert.False(t, payload.Retryable)
}

func TestCheckoutReturnsSecrets(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/checkout/subscription", "user-1", gin.H{"price_id": "price_monthly"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"paymentIntent":"pi_secret","ephemeralKey":"ek","customer":"cus_1"}}`, rec.Body.String())
}

func TestCheckoutRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := ratelimit.NewCheckoutLimiter(ratelimit.CheckoutLimiterParams{
		Cfg: config.Config{RateLimit: config.RateLimitConfig{
			Enabled:           true,
			CheckoutUserRate:  0.001,
			CheckoutUserBurst: 1,
		}},
		Client: client,
	})
	require.NoError(t, err)
	ts := newTestServer(t, limiter)

	first := ts.do(http.MethodPost, "/api/checkout/payment", "user-1", gin.H{"amount": 1000})
	second := ts.do(http.MethodPost, "/api/checkout/payment", "user-1", gin.H{"amount": 1000})
	other := ts.do(http.MethodPost, "/api/checkout/payment", "user-2", gin.H{"amount": 1000})

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Equal(t, 2, ts.checkout.calls)
}

func TestGetPurchaseNotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.resolver.err = resolver.ErrNotFound

	rec := ts.do(http.MethodGet, "/api/purchases/pi_123", "user-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPurchaseReceipt(t *testing.T) {
	ts := newTestServer(t, nil)
	processed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	ts.resolver.res = &resolver.Resolution{
		Payment: &paymentdomain.Payment{ID: "pi_123"},
		Request: &purchasedomain.PurchaseRequest{
			ID:          snowflake.ID(42),
			UserID:      "user-1",
			TotalAmount: 3200,
			Currency:    "usd",
			Status:      purchasedomain.StatusSuccess,
			ProcessedAt: &processed,
		},
		Items: []resolver.ResolvedItem{{ProductID: "prod_forest", Name: "Forest", Quantity: 2, UnitAmount: 1600, Currency: "usd"}},
	}

	rec := ts.do(http.MethodGet, "/api/purchases/pi_123/receipt", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestPurchaseReceiptRequiresSuccess(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.resolver.res = &resolver.Resolution{
		Request: &purchasedomain.PurchaseRequest{ID: snowflake.ID(42), Status: purchasedomain.StatusError},
	}

	rec := ts.do(http.MethodGet, "/api/purchases/pi_123/receipt", "user-1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCredits(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/credits", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Total)
}

func TestEmissionsHandlers(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/emissions/2026-03", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Month        string  `json:"month"`
			NetEmissions float64 `json:"net_emissions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-03", resp.Data.Month)
	assert.Equal(t, 3.0, resp.Data.NetEmissions)

	rec = ts.do(http.MethodGet, "/api/emissions/2026-04", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPut, "/api/emissions/bad", "user-1", gin.H{"subtotals": gin.H{"food": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/community/emissions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"user_months":4,"total_emissions":10,"average":2.5}}`, rec.Body.String())
}

func TestStripeWebhookSignatureFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.err = paymentdomain.ErrInvalidSignature

	rec := ts.do(http.MethodPost, "/webhooks/stripe", "", gin.H{"id": "evt_1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhookNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.payments.err = paymentdomain.ErrNotConfigured

	rec := ts.do(http.MethodPost, "/webhooks/stripe", "", gin.H{"id": "evt_1"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
