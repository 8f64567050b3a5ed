package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cartdomain "github.com/smallbiznis/carbonmarket/internal/cart/domain"
	checkoutdomain "github.com/smallbiznis/carbonmarket/internal/checkout/domain"
	"github.com/smallbiznis/carbonmarket/internal/config"
	emissionsdomain "github.com/smallbiznis/carbonmarket/internal/emissions/domain"
	"github.com/smallbiznis/carbonmarket/internal/observability"
	obsmiddleware "github.com/smallbiznis/carbonmarket/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	obstracing "github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/carbonmarket/internal/payment/domain"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"github.com/smallbiznis/carbonmarket/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"github.com/smallbiznis/carbonmarket/internal/resolver"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP API. Domain modules are wired by the binaries.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type purchaseResolver interface {
	ResolvePurchase(ctx context.Context, userID, paymentReference string) (*resolver.Resolution, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	productSvc      productdomain.Service
	cartSvc         cartdomain.Service
	checkoutSvc     checkoutdomain.Service
	purchaseSvc     purchasedomain.Service
	resolver        purchaseResolver
	emissionsSvc    emissionsdomain.Service
	paymentSvc      paymentdomain.Service
	receipts        pdf.Provider
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	ProductSvc      productdomain.Service
	CartSvc         cartdomain.Service
	CheckoutSvc     checkoutdomain.Service
	PurchaseSvc     purchasedomain.Service
	Resolver        *resolver.Resolver
	EmissionsSvc    emissionsdomain.Service
	PaymentSvc      paymentdomain.Service
	Receipts        pdf.Provider
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		productSvc:      p.ProductSvc,
		cartSvc:         p.CartSvc,
		checkoutSvc:     p.CheckoutSvc,
		purchaseSvc:     p.PurchaseSvc,
		resolver:        p.Resolver,
		emissionsSvc:    p.EmissionsSvc,
		paymentSvc:      p.PaymentSvc,
		receipts:        p.Receipts,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.registerAPIRoutes()
	s.registerWebhookRoutes()
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/products", s.ListProducts)
	api.GET("/products/:id", s.GetProductByID)

	user := api.Group("", UserRequired())

	// -------- Cart --------
	user.GET("/cart", s.GetCart)
	user.GET("/cart/total", s.GetCartTotal)
	user.POST("/cart/items", s.AddCartItem)
	user.POST("/cart/items/:id/increment", s.IncrementCartItem)
	user.POST("/cart/items/:id/decrement", s.DecrementCartItem)
	user.DELETE("/cart", s.ClearCart)

	// -------- Checkout --------
	user.POST("/checkout/payment", s.CheckoutRateLimit(), s.CreatePaymentSession)
	user.POST("/checkout/subscription", s.CheckoutRateLimit(), s.CreateSubscriptionSession)

	// -------- Purchases --------
	user.POST("/purchases", s.RequestCarbonCredits)
	user.GET("/purchases/:payment_id", s.GetPurchase)
	user.GET("/purchases/:payment_id/receipt", s.GetPurchaseReceipt)
	user.GET("/credits", s.ListCredits)

	// -------- Emissions --------
	user.GET("/emissions/:month", s.GetEmissions)
	user.PUT("/emissions/:month", s.SaveEmissions)
	api.GET("/community/emissions", s.GetCommunityEmissions)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}
