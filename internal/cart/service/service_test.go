package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carbonmarket/internal/cache"
	"github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"github.com/smallbiznis/carbonmarket/internal/cart/repository"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	pricerepo "github.com/smallbiznis/carbonmarket/internal/price/repository"
	productrepo "github.com/smallbiznis/carbonmarket/internal/product/repository"
	productsvc "github.com/smallbiznis/carbonmarket/internal/product/service"
	"github.com/smallbiznis/carbonmarket/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, mirror domain.Mirror) domain.Service {
	t.Helper()
	svc, _ := newTestServiceWithDB(t, mirror)
	return svc
}

func newTestServiceWithDB(t *testing.T, mirror domain.Mirror) (domain.Service, *gorm.DB) {
	t.Helper()
	if mirror == nil {
		mirror = repository.NewMirror(nil)
	}
	db := testutil.NewDB(t)
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Mirror: mirror,
		Products: productsvc.New(productsvc.Params{
			DB:        db,
			Log:       zap.NewNop(),
			Repo:      productrepo.Provide(),
			PriceRepo: pricerepo.Provide(),
			Cache:     cache.NewCatalogCache(),
		}),
	})
	return svc, db
}

func addItem(t *testing.T, svc domain.Service, userID, productID string, qty int64) *domain.Cart {
	t.Helper()
	cart, err := svc.AddItem(context.Background(), domain.AddItemRequest{
		UserID:      userID,
		ProductID:   productID,
		ProductType: "carbon_credit",
		Name:        "Credit " + productID,
		Quantity:    qty,
	})
	require.NoError(t, err)
	return cart
}

func TestAddItemSumsQuantity(t *testing.T) {
	svc := newTestService(t, nil)

	addItem(t, svc, "user-1", "prod_a", 2)
	cart := addItem(t, svc, "user-1", "prod_a", 3)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(5), cart.Quantity("prod_a"))
	assert.Equal(t, "Credit prod_a", cart.Items[0].Name)
}

func TestAddItemValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.AddItemRequest{ProductID: "prod_a", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.AddItem(ctx, domain.AddItemRequest{UserID: "user-1", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)

	_, err = svc.AddItem(ctx, domain.AddItemRequest{UserID: "user-1", ProductID: "prod_a"})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestIncrementAndDecrement(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	addItem(t, svc, "user-1", "prod_a", 1)

	cart, err := svc.IncrementItem(ctx, "user-1", "prod_a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Quantity("prod_a"))

	cart, err = svc.DecrementItem(ctx, "user-1", "prod_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Quantity("prod_a"))

	cart, err = svc.DecrementItem(ctx, "user-1", "prod_a")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = svc.DecrementItem(ctx, "user-1", "prod_a")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)

	_, err = svc.IncrementItem(ctx, "user-1", "prod_missing")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestQuantitiesNeverDropBelowOne(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	addItem(t, svc, "user-1", "prod_a", 3)
	addItem(t, svc, "user-1", "prod_b", 1)

	ops := []struct {
		product string
		inc     bool
	}{
		{"prod_a", false}, {"prod_b", true}, {"prod_a", false}, {"prod_a", false},
		{"prod_b", false}, {"prod_b", false}, {"prod_a", true},
	}
	for _, op := range ops {
		var cart *domain.Cart
		var err error
		if op.inc {
			cart, err = svc.IncrementItem(ctx, "user-1", op.product)
		} else {
			cart, err = svc.DecrementItem(ctx, "user-1", op.product)
		}
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrItemNotFound)
			continue
		}
		for _, item := range cart.Items {
			assert.GreaterOrEqual(t, item.Quantity, int64(1))
		}
	}

	cart, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cart.Quantity("prod_a"))
	assert.Equal(t, int64(0), cart.Quantity("prod_b"))
}

func TestConcurrentIncrementsAreSerialized(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	addItem(t, svc, "user-1", "prod_a", 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementItem(ctx, "user-1", "prod_a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), cart.Quantity("prod_a"))
}

func TestClearEmptiesOnlyThatUser(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	addItem(t, svc, "user-1", "prod_a", 1)
	addItem(t, svc, "user-2", "prod_a", 4)

	require.NoError(t, svc.Clear(ctx, "user-1"))

	cart, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	other, err := svc.Items(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), other.Quantity("prod_a"))
}

func TestSubscribeDeliversSnapshotThenChangesInOrder(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	addItem(t, svc, "user-1", "prod_a", 1)

	var mu sync.Mutex
	var seen []int64
	sub, err := svc.Subscribe(ctx, "user-1", func(c domain.Cart) {
		mu.Lock()
		seen = append(seen, c.Quantity("prod_a"))
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 3; i++ {
		_, err := svc.IncrementItem(ctx, "user-1", "prod_a")
		require.NoError(t, err)
	}
	_, err = svc.DecrementItem(ctx, "user-1", "prod_a")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{1, 2, 3, 4, 3}, seen)
	mu.Unlock()
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var mu sync.Mutex
	calls := 0
	sub, err := svc.Subscribe(ctx, "user-1", func(domain.Cart) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	sub.Close()
	sub.Close()

	addItem(t, svc, "user-1", "prod_a", 1)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestMirrorRefreshedAfterMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mirror := repository.NewRedisMirror(client, time.Minute)

	svc := newTestService(t, mirror)
	ctx := context.Background()
	addItem(t, svc, "user-1", "prod_a", 2)

	cached, err := mirror.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Quantity("prod_a"))

	cart, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Quantity("prod_a"))
}

func TestMutationSucceedsWhenMirrorIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mirror := repository.NewRedisMirror(client, time.Minute)

	svc := newTestService(t, mirror)
	mr.Close()

	cart := addItem(t, svc, "user-1", "prod_a", 1)
	assert.Equal(t, int64(1), cart.Quantity("prod_a"))
}

// gatedMirror blocks the first Set after arm until release is closed.
type gatedMirror struct {
	domain.Mirror
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedMirror(inner domain.Mirror) *gatedMirror {
	return &gatedMirror{Mirror: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedMirror) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedMirror) Set(ctx context.Context, cart *domain.Cart) error {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	g.mu.Unlock()
	if hold {
		close(g.entered)
		<-g.release
	}
	return g.Mirror.Set(ctx, cart)
}

func TestItemsRefillDoesNotOverwriteNewerMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mirror := newGatedMirror(repository.NewRedisMirror(client, time.Minute))

	svc := newTestService(t, mirror)
	ctx := context.Background()
	addItem(t, svc, "user-1", "prod_a", 1)
	require.NoError(t, mirror.Delete(ctx, "user-1"))

	mirror.arm()
	refilled := make(chan error, 1)
	go func() {
		_, err := svc.Items(ctx, "user-1")
		refilled <- err
	}()
	<-mirror.entered

	incremented := make(chan error, 1)
	go func() {
		_, err := svc.IncrementItem(ctx, "user-1", "prod_a")
		incremented <- err
	}()
	// Give the increment a chance to run ahead of the held refill.
	time.Sleep(50 * time.Millisecond)
	close(mirror.release)

	require.NoError(t, <-refilled)
	require.NoError(t, <-incremented)

	cached, err := mirror.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cached.Quantity("prod_a"))

	cart, err := svc.Items(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Quantity("prod_a"))
}

func TestTotalPricesEveryItem(t *testing.T) {
	svc, db := newTestServiceWithDB(t, nil)
	ctx := context.Background()
	testutil.SeedProduct(t, db, "credit_a", "Credit A", 100, "price_a", 500)
	testutil.SeedProduct(t, db, "credit_b", "Credit B", 100, "price_b", 1200)

	addItem(t, svc, "user-1", "credit_a", 2)
	addItem(t, svc, "user-1", "credit_b", 1)

	total, err := svc.Total(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2200), total.Amount)
	assert.Equal(t, "usd", total.Currency)
	assert.Equal(t, int64(3), total.Count)
}

func TestTotalRejectsUnpayableCarts(t *testing.T) {
	svc, db := newTestServiceWithDB(t, nil)
	ctx := context.Background()
	testutil.SeedProduct(t, db, "credit_a", "Credit A", 100, "price_a", 500)
	testutil.SeedProduct(t, db, "credit_unpriced", "Unpriced", 100, "", 0)
	testutil.SeedProduct(t, db, "credit_eur", "Euro", 100, "", 0)
	require.NoError(t, db.Exec(`INSERT INTO prices (id, product_id, currency, unit_amount, active, created_at)
		VALUES ('price_eur', 'credit_eur', 'eur', 900, 1, CURRENT_TIMESTAMP)`).Error)

	_, err := svc.Total(ctx, "user-empty")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = svc.Total(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	addItem(t, svc, "user-ghost", "credit_missing", 1)
	_, err = svc.Total(ctx, "user-ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownProduct)

	addItem(t, svc, "user-unpriced", "credit_unpriced", 1)
	_, err = svc.Total(ctx, "user-unpriced")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	addItem(t, svc, "user-mixed", "credit_a", 1)
	addItem(t, svc, "user-mixed", "credit_eur", 1)
	_, err = svc.Total(ctx, "user-mixed")
	assert.ErrorIs(t, err, domain.ErrMixedCurrency)
}
