package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/checkout"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	"github.com/smallbiznis/carbonmarket/internal/customer"
	"github.com/smallbiznis/carbonmarket/internal/emissions"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	"github.com/smallbiznis/carbonmarket/internal/payment"
	"github.com/smallbiznis/carbonmarket/internal/paymentbridge"
	"github.com/smallbiznis/carbonmarket/internal/price"
	"github.com/smallbiznis/carbonmarket/internal/product"
	"github.com/smallbiznis/carbonmarket/internal/purchase"
	"github.com/smallbiznis/carbonmarket/internal/purchase/events"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/reconciler"
	"github.com/smallbiznis/carbonmarket/internal/scheduler"
	"github.com/smallbiznis/carbonmarket/pkg/db"
	"github.com/smallbiznis/carbonmarket/pkg/firestoreclient"
	"github.com/smallbiznis/carbonmarket/pkg/redisclient"
	"github.com/smallbiznis/carbonmarket/pkg/stripeclient"
	"go.uber.org/fx"
)

// The worker owns background work: the Kafka consumer, the pending sweep
// and the checkout session fulfiller. No HTTP server.
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

		// Dependencies of the reconciler and fulfiller
		price.Module,
		product.Module,
		payment.Module,
		emissions.Module,
		checkout.Module,
		customer.Module,
		purchase.Module,
		ratelimit.Module,

		reconciler.Module,
		paymentbridge.Module,
		events.ConsumerModule,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
