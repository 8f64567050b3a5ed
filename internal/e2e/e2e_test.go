package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carbonmarket/internal/cart"
	"github.com/smallbiznis/carbonmarket/internal/checkout"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/emissions"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/payment"
	"github.com/smallbiznis/carbonmarket/internal/price"
	"github.com/smallbiznis/carbonmarket/internal/product"
	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
	"github.com/smallbiznis/carbonmarket/internal/purchase"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/reconciler"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"github.com/smallbiznis/carbonmarket/internal/server"
	"github.com/smallbiznis/carbonmarket/internal/testutil"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_e2e"

var frozenNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	app     *fx.App
	db      *gorm.DB
	baseURL string
	httpSrv *httptest.Server
}

// startEnv boots the API on sqlite with the in-process trigger and local
// inventory, the way a single-node deployment runs without Redis.
func startEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	cfg := config.Config{
		AppName:          "carbonmarket",
		Environment:      "test",
		DBType:           "sqlite",
		InventoryBackend: config.BackendLocal,
		DocumentBackend:  config.BackendSQL,
		TriggerBackend:   config.BackendInProcess,
		Stripe:           config.StripeConfig{WebhookSecret: webhookSecret},
		RateLimit:        config.RateLimitConfig{ReconcileLockTTL: 30 * time.Second},
	}
	polling := config.NewStaticPollingConfigHolder(config.PollingConfig{
		CheckoutSession:  config.PollBudget{Interval: 10 * time.Millisecond, MaxAttempts: 5},
		PurchaseComplete: config.PollBudget{Interval: 10 * time.Millisecond, MaxAttempts: 300},
	})

	var engine *gin.Engine
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Supply(observability.Config{ServiceName: "carbonmarket", Environment: "test"}),
		fx.Supply(db),
		fx.Supply(polling),
		fx.Provide(zap.NewNop),
		fx.Provide(func() clock.Clock { return clock.NewFakeClock(frozenNow) }),
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(1) }),
		fx.Provide(func() *redis.Client { return nil }),
		fx.Provide(func() *obsmetrics.HTTPMetrics { return nil }),

		price.Module,
		product.Module,
		cart.Module,
		checkout.Module,
		payment.Module,
		emissions.Module,
		purchase.Module,
		reconciler.Module,
		resolver.Module,
		ratelimit.Module,
		pdf.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) { s.RegisterRoutes() }),
		fx.Populate(&engine),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start app: %v", err)
	}

	httpSrv := httptest.NewServer(engine)
	env := &testEnv{app: app, db: db, baseURL: httpSrv.URL, httpSrv: httpSrv}
	t.Cleanup(env.shutdown)
	return env
}

func (e *testEnv) shutdown() {
	e.httpSrv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = e.app.Stop(ctx)
}

func TestE2E_HealthCheck(t *testing.T) {
	env := startEnv(t)

	resp, _ := doJSON(t, env, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_PurchaseFlow(t *testing.T) {
	env := startEnv(t)
	testutil.SeedProduct(t, env.db, "prod_forest", "Forest", 100, "price_forest", 1100)

	resp, body := doJSON(t, env, http.MethodPost, "/api/cart/items", "user-1", map[string]any{
		"product_id":   "prod_forest",
		"product_type": "carbon_credit",
		"name":         "Forest",
		"quantity":     2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add cart item failed: %d: %s", resp.StatusCode, string(body))
	}

	var totalPayload struct {
		Data struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"data"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/cart/total", "user-1", nil)
	decode(t, resp, body, &totalPayload)
	if totalPayload.Data.Amount != 2200 || totalPayload.Data.Currency != "usd" {
		t.Fatalf("expected cart total 2200 usd, got %d %s", totalPayload.Data.Amount, totalPayload.Data.Currency)
	}

	postPaymentIntent(t, env, "pi_e2e", "user-1", 2200)

	requestID := requestCredits(t, env, "user-1", "pi_e2e", "prod_forest", 2)
	if again := requestCredits(t, env, "user-1", "pi_e2e", "prod_forest", 2); again != requestID {
		t.Fatalf("expected retried request to reuse %s, got %s", requestID, again)
	}

	var cartPayload struct {
		Data struct {
			Count int64 `json:"count"`
		} `json:"data"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/cart", "user-1", nil)
	decode(t, resp, body, &cartPayload)
	if cartPayload.Data.Count != 0 {
		t.Fatalf("expected cart cleared after purchase, got %d items", cartPayload.Data.Count)
	}

	var purchasePayload struct {
		Data struct {
			Request struct {
				Status string `json:"status"`
			} `json:"request"`
			Items []struct {
				ProductID  string `json:"product_id"`
				Name       string `json:"name"`
				Quantity   int64  `json:"quantity"`
				UnitAmount int64  `json:"unit_amount"`
			} `json:"items"`
		} `json:"data"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/purchases/pi_e2e", "user-1", nil)
	decode(t, resp, body, &purchasePayload)
	if purchasePayload.Data.Request.Status != "success" {
		t.Fatalf("expected purchase success, got %q", purchasePayload.Data.Request.Status)
	}
	if len(purchasePayload.Data.Items) != 1 {
		t.Fatalf("expected 1 resolved item, got %d", len(purchasePayload.Data.Items))
	}
	item := purchasePayload.Data.Items[0]
	if item.ProductID != "prod_forest" || item.Name != "Forest" || item.Quantity != 2 || item.UnitAmount != 1100 {
		t.Fatalf("unexpected resolved item: %+v", item)
	}

	if remaining := testutil.Remaining(t, env.db, "prod_forest"); remaining != 98 {
		t.Fatalf("expected 98 remaining, got %d", remaining)
	}

	var creditsPayload struct {
		Total int64 `json:"total"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/credits", "user-1", nil)
	decode(t, resp, body, &creditsPayload)
	if creditsPayload.Total != 2 {
		t.Fatalf("expected 2 credits, got %d", creditsPayload.Total)
	}

	var emissionsPayload struct {
		Data struct {
			Month       string `json:"month"`
			TotalOffset int64  `json:"total_offset"`
		} `json:"data"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/emissions/"+clock.MonthKey(frozenNow), "user-1", nil)
	decode(t, resp, body, &emissionsPayload)
	if emissionsPayload.Data.TotalOffset != 2 {
		t.Fatalf("expected offset 2 for %s, got %d", emissionsPayload.Data.Month, emissionsPayload.Data.TotalOffset)
	}

	resp, body = doJSON(t, env, http.MethodGet, "/api/purchases/pi_e2e/receipt", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("receipt failed: %d: %s", resp.StatusCode, string(body))
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("expected a pdf receipt")
	}

	resp, _ = doJSON(t, env, http.MethodGet, "/api/purchases/pi_e2e", "user-2", nil)
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected another user's purchase to stay hidden")
	}
}

func TestE2E_InsufficientInventoryIsTerminal(t *testing.T) {
	env := startEnv(t)
	testutil.SeedProduct(t, env.db, "prod_dac", "Direct Air Capture", 1, "price_dac", 45000)

	postPaymentIntent(t, env, "pi_short", "user-1", 90000)
	requestCredits(t, env, "user-1", "pi_short", "prod_dac", 2)

	var purchasePayload struct {
		Data struct {
			Request struct {
				Status       string `json:"status"`
				ErrorMessage string `json:"errorMessage"`
			} `json:"request"`
		} `json:"data"`
	}
	resp, body := doJSON(t, env, http.MethodGet, "/api/purchases/pi_short", "user-1", nil)
	decode(t, resp, body, &purchasePayload)
	if purchasePayload.Data.Request.Status != "error" {
		t.Fatalf("expected purchase error, got %q", purchasePayload.Data.Request.Status)
	}
	if purchasePayload.Data.Request.ErrorMessage == "" {
		t.Fatalf("expected an error message on the failed request")
	}

	if remaining := testutil.Remaining(t, env.db, "prod_dac"); remaining != 1 {
		t.Fatalf("expected inventory untouched, got %d", remaining)
	}

	var creditsPayload struct {
		Total int64 `json:"total"`
	}
	resp, body = doJSON(t, env, http.MethodGet, "/api/credits", "user-1", nil)
	decode(t, resp, body, &creditsPayload)
	if creditsPayload.Total != 0 {
		t.Fatalf("expected no credits, got %d", creditsPayload.Total)
	}
}

func TestE2E_WebhookRejectsBadSignature(t *testing.T) {
	env := startEnv(t)

	payload := paymentIntentEvent(t, "pi_forged", "user-1", 100)
	req, err := http.NewRequest(http.MethodPost, env.baseURL+"/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Stripe-Signature", signPayload("whsec_other", payload))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.StatusCode)
	}

	var count int64
	if err := env.db.Raw(`SELECT COUNT(*) FROM payments`).Scan(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected forged payment to be dropped, found %d", count)
	}
}

func requestCredits(t *testing.T, env *testEnv, userID, paymentID, productID string, quantity int64) string {
	t.Helper()
	resp, body := doJSON(t, env, http.MethodPost, "/api/purchases", userID, map[string]any{
		"items":             []map[string]any{{"id": productID, "quantity": quantity}},
		"payment_intent_id": paymentID,
	})
	var payload struct {
		Data struct {
			Success   bool   `json:"success"`
			RequestID string `json:"requestId"`
		} `json:"data"`
	}
	decode(t, resp, body, &payload)
	if !payload.Data.Success || payload.Data.RequestID == "" {
		t.Fatalf("purchase request not recorded: %s", string(body))
	}
	return payload.Data.RequestID
}

func postPaymentIntent(t *testing.T, env *testEnv, paymentID, userID string, amount int64) {
	t.Helper()
	payload := paymentIntentEvent(t, paymentID, userID, amount)
	req, err := http.NewRequest(http.MethodPost, env.baseURL+"/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signPayload(webhookSecret, payload))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("webhook failed: %d: %s", resp.StatusCode, string(body))
	}
}

func paymentIntentEvent(t *testing.T, paymentID, userID string, amount int64) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + paymentID,
		"object":      "event",
		"api_version": "2022-11-15",
		"type":        "payment_intent.succeeded",
		"created":     time.Now().Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":       paymentID,
			"object":   "payment_intent",
			"amount":   amount,
			"currency": "usd",
			"status":   "succeeded",
			"created":  frozenNow.Unix(),
			"metadata": map[string]string{"user_id": userID},
		}},
	})
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	return payload
}

func signPayload(secret string, payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func doJSON(t *testing.T, env *testEnv, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, env.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(server.HeaderUserID, userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, resp *http.Response, body []byte, out any) {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s %s: status %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
