package seed

import (
	"context"
	"testing"

	"github.com/smallbiznis/carbonmarket/internal/cache"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	pricerepo "github.com/smallbiznis/carbonmarket/internal/price/repository"
	priceservice "github.com/smallbiznis/carbonmarket/internal/price/service"
	productrepo "github.com/smallbiznis/carbonmarket/internal/product/repository"
	productservice "github.com/smallbiznis/carbonmarket/internal/product/service"
	"github.com/smallbiznis/carbonmarket/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newServices(t *testing.T) (*gorm.DB, *productservice.Service, pricedomain.Service) {
	t.Helper()
	db := testutil.NewDB(t)
	products := productservice.New(productservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Repo:      productrepo.Provide(),
		PriceRepo: pricerepo.Provide(),
		Cache:     cache.NewCatalogCache(),
	}).(*productservice.Service)
	prices := priceservice.New(priceservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: pricerepo.Provide(),
	})
	return db, products, prices
}

func TestEnsureCatalogCreatesListings(t *testing.T) {
	db, products, prices := newServices(t)
	ctx := context.Background()

	created, err := EnsureCatalog(ctx, products, prices, DefaultCatalog)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog), created)

	items, err := products.ListCarbonCreditProducts(ctx)
	require.NoError(t, err)
	require.Len(t, items, len(DefaultCatalog))
	for _, item := range items {
		require.Len(t, item.Prices, 1, item.ID)
	}

	assert.Equal(t, int64(1000), testutil.Remaining(t, db, "prod_forest_restoration"))
}

func TestEnsureCatalogKeepsExistingInventory(t *testing.T) {
	db, products, prices := newServices(t)
	ctx := context.Background()

	testutil.SeedProduct(t, db, "prod_forest_restoration", "Forest", 12, "price_forest_restoration", 1500)

	created, err := EnsureCatalog(ctx, products, prices, DefaultCatalog)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog)-1, created)
	assert.Equal(t, int64(12), testutil.Remaining(t, db, "prod_forest_restoration"))

	again, err := EnsureCatalog(ctx, products, prices, DefaultCatalog)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestEnsureCatalogRequiresServices(t *testing.T) {
	_, err := EnsureCatalog(context.Background(), nil, nil, DefaultCatalog)
	require.Error(t, err)
}

func TestListingIDs(t *testing.T) {
	l := Listing{Key: "Mangrove Blue Carbon"}
	assert.Equal(t, "prod_mangrove_blue_carbon", l.ProductID())
	assert.Equal(t, "price_mangrove_blue_carbon", l.PriceID())
}
