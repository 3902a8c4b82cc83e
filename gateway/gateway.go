package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// Services are the use cases the HTTP surface is wired to.
type Services struct {
	Accounts *service.AccountService
	Catalog  *service.CatalogService
	Orders   *service.OrderService
	Checkout *service.CheckoutService
}

type Gateway struct {
	config   *config.Config
	services Services
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

func NewGateway(cfg *config.Config, logger *zap.Logger, services Services) *Gateway {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	router.Use(metrics.Middleware())

	g := &Gateway{
		config:   cfg,
		services: services,
		logger:   logger,
		router:   router,
	}
	g.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	g.router.GET("/metrics", metrics.Handler())

	api := g.router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register/", g.register)
			authGroup.POST("/login/", g.login)
			authGroup.POST("/token/refresh/", g.refresh)
			authGroup.POST("/logout/", g.requireUser(), g.logout)
			authGroup.GET("/profile/", g.requireUser(), g.profile)
		}

		catalog := api.Group("/catalog")
		{
			catalog.GET("/categories/", g.listCategories)
			catalog.GET("/products/", g.listProducts)
			catalog.GET("/products/:slug/", g.getProduct)
		}

		orders := api.Group("/orders")
		{
			orders.GET("/", g.requireUser(), g.listOrders)
			orders.GET("/by-checkout-session/", g.orderByCheckoutSession)
			orders.GET("/:id/", g.requireUser(), g.getOrder)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/create-checkout-session/", g.requireUser(), g.createCheckoutSession)
			payments.POST("/confirm-checkout-session/", g.requireUser(), g.confirmCheckoutSession)
			payments.POST("/webhook/", g.webhook)
		}
	}

	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler exposes the router for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInsufficientStock, apperr.KindProcessor:
		return http.StatusBadRequest
	case apperr.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": message}. Unclassified errors are logged and
// reported without detail.
func (g *Gateway) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		g.logger.Error("Request failed",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("path", c.Request.URL.Path),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}

func (g *Gateway) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
