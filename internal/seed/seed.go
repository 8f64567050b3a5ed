package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/carbonmarket/internal/config"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module seeds a demo catalog on boot when SEED_CATALOG is set.
var Module = fx.Module("seed",
	fx.Invoke(Register),
)

// Listing is one carbon-credit product with its one-time price. Key names
// the project; product and price ids derive from it.
type Listing struct {
	Key         string
	Name        string
	Description string
	Image       string
	UnitAmount  int64
	Currency    string
	Remaining   int64
}

// DefaultCatalog is the development catalog.
var DefaultCatalog = []Listing{
	{
		Key:         "Forest Restoration",
		Name:        "Forest Restoration Credit",
		Description: "One tonne of CO2e removed by native reforestation.",
		Image:       "https://images.carbonmarket.dev/forest.jpg",
		UnitAmount:  1500,
		Currency:    "usd",
		Remaining:   1000,
	},
	{
		Key:         "Mangrove Blue Carbon",
		Name:        "Mangrove Blue Carbon Credit",
		Description: "One tonne of CO2e sequestered by coastal mangrove protection.",
		Image:       "https://images.carbonmarket.dev/mangrove.jpg",
		UnitAmount:  2200,
		Currency:    "usd",
		Remaining:   500,
	},
	{
		Key:         "Direct Air Capture",
		Name:        "Direct Air Capture Credit",
		Description: "One tonne of CO2e captured and stored geologically.",
		Image:       "https://images.carbonmarket.dev/dac.jpg",
		UnitAmount:  45000,
		Currency:    "usd",
		Remaining:   50,
	},
}

func (l Listing) ProductID() string { return "prod_" + l.idSuffix() }

func (l Listing) PriceID() string { return "price_" + l.idSuffix() }

func (l Listing) idSuffix() string {
	return strings.ReplaceAll(slug.Make(l.Key), "-", "_")
}

type Params struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      config.Config
	Log      *zap.Logger
	Products productdomain.Service
	Prices   pricedomain.Service
}

func Register(p Params) {
	if !p.Cfg.SeedCatalog {
		return
	}
	log := p.Log.Named("seed")
	p.Lc.Append(fx.StartHook(func(ctx context.Context) error {
		created, err := EnsureCatalog(ctx, p.Products, p.Prices, DefaultCatalog)
		if err != nil {
			return err
		}
		log.Info("catalog seeded", zap.Int("created", created))
		return nil
	}))
}

// EnsureCatalog creates listings that do not exist yet. Existing products are
// left untouched so their remaining inventory survives restarts.
func EnsureCatalog(ctx context.Context, products productdomain.Service, prices pricedomain.Service, listings []Listing) (int, error) {
	if products == nil || prices == nil {
		return 0, errors.New("seed services are required")
	}

	created := 0
	for _, l := range listings {
		existing, err := products.GetProduct(ctx, l.ProductID())
		if err != nil {
			return created, fmt.Errorf("lookup %s: %w", l.ProductID(), err)
		}
		if existing != nil {
			continue
		}

		if err := products.Upsert(ctx, productdomain.UpsertRequest{
			ID:          l.ProductID(),
			Name:        l.Name,
			Description: l.Description,
			Active:      true,
			Type:        productdomain.TypeCarbonCredit,
			Images:      []string{l.Image},
			Metadata: map[string]any{
				productdomain.MetadataType:      productdomain.TypeCarbonCredit,
				productdomain.MetadataRemaining: l.Remaining,
			},
		}); err != nil {
			return created, err
		}
		if err := prices.Upsert(ctx, pricedomain.Price{
			ID:         l.PriceID(),
			ProductID:  l.ProductID(),
			Currency:   l.Currency,
			UnitAmount: l.UnitAmount,
			Active:     true,
		}); err != nil {
			return created, err
		}
		created++
	}

	// Prices land after their product; drop reads cached in between.
	products.Invalidate()
	return created, nil
}
