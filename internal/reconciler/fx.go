package reconciler

import (
	"fmt"

	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"github.com/smallbiznis/carbonmarket/internal/purchase/events"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("reconciler",
	fx.Provide(NewInventory),
	fx.Provide(New),
	fx.Provide(func(r *Reconciler) events.Processor { return r }),
)

type InventoryParams struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Clock    clock.Clock
	Repo     productdomain.Repository
	Products productdomain.Service
	Stripe   *client.API `optional:"true"`
}

func NewInventory(p InventoryParams) (Inventory, error) {
	switch p.Cfg.InventoryBackend {
	case config.BackendStripe:
		if p.Stripe == nil {
			return nil, fmt.Errorf("INVENTORY_BACKEND=stripe requires STRIPE_SECRET_KEY")
		}
		return NewStripeInventory(p.Stripe), nil
	case config.BackendLocal, "":
		return NewLocalInventory(p.DB, p.Repo, p.Clock, p.Products), nil
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", p.Cfg.InventoryBackend)
	}
}
