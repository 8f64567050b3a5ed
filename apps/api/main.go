package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/cart"
	"github.com/smallbiznis/carbonmarket/internal/checkout"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/emissions"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	"github.com/smallbiznis/carbonmarket/internal/payment"
	"github.com/smallbiznis/carbonmarket/internal/price"
	"github.com/smallbiznis/carbonmarket/internal/product"
	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
	"github.com/smallbiznis/carbonmarket/internal/purchase"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/reconciler"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"github.com/smallbiznis/carbonmarket/internal/server"
	"github.com/smallbiznis/carbonmarket/pkg/db"
	"github.com/smallbiznis/carbonmarket/pkg/firestoreclient"
	"github.com/smallbiznis/carbonmarket/pkg/redisclient"
	"github.com/smallbiznis/carbonmarket/pkg/stripeclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisclient.Module,
		firestoreclient.Module,
		stripeclient.Module,

		// Catalog and checkout
		price.Module,
		product.Module,
		cart.Module,
		checkout.Module,
		payment.Module,
		emissions.Module,

		// Purchases. The in-process trigger needs the reconciler in this binary;
		// with TRIGGER_BACKEND=kafka it is only wired, never called.
		purchase.Module,
		reconciler.Module,
		resolver.Module,
		ratelimit.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
