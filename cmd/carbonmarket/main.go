package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/cart"
	"github.com/smallbiznis/carbonmarket/internal/checkout"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/customer"
	"github.com/smallbiznis/carbonmarket/internal/emissions"
	"github.com/smallbiznis/carbonmarket/internal/migration"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	"github.com/smallbiznis/carbonmarket/internal/payment"
	"github.com/smallbiznis/carbonmarket/internal/paymentbridge"
	"github.com/smallbiznis/carbonmarket/internal/price"
	"github.com/smallbiznis/carbonmarket/internal/product"
	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
	"github.com/smallbiznis/carbonmarket/internal/purchase"
	"github.com/smallbiznis/carbonmarket/internal/purchase/events"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/reconciler"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"github.com/smallbiznis/carbonmarket/internal/scheduler"
	"github.com/smallbiznis/carbonmarket/internal/seed"
	"github.com/smallbiznis/carbonmarket/internal/server"
	"github.com/smallbiznis/carbonmarket/pkg/db"
	"github.com/smallbiznis/carbonmarket/pkg/firestoreclient"
	"github.com/smallbiznis/carbonmarket/pkg/redisclient"
	"github.com/smallbiznis/carbonmarket/pkg/stripeclient"
	"go.uber.org/fx"
)

// Monolith: API, worker jobs and migrations in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		firestoreclient.Module,
		stripeclient.Module,

		// Functional Domains
		price.Module,
		product.Module,
		cart.Module,
		checkout.Module,
		customer.Module,
		payment.Module,
		emissions.Module,
		purchase.Module,
		reconciler.Module,
		resolver.Module,
		ratelimit.Module,
		paymentbridge.Module,
		pdf.Module,
		seed.Module,

		// Background work
		events.ConsumerModule,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
