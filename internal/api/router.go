// Package api is the JSON HTTP surface of the store: the public catalog,
// the signed-in customer's cart and orders, the admin back office, and the
// payment webhook.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/auth"
	"github.com/safar/hardware-store/internal/checkout"
	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/events"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/payment"
	"github.com/safar/hardware-store/internal/pricing"
	"go.uber.org/zap"
)

type Checkout interface {
	Quote(ctx context.Context, in checkout.QuoteInput) (*pricing.Quote, error)
	PlaceOrder(ctx context.Context, in checkout.PlaceOrderInput) (*checkout.PlaceOrderResult, error)
	HandlePaymentCompleted(ctx context.Context, p payment.CompletedPayment) (*models.Order, error)
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payment.CompletedPayment, error)
}

type Tracker interface {
	Track(ctx context.Context, number string) ([]models.TrackingEvent, error)
}

type Deps struct {
	DB                 *sql.DB
	Checkout           Checkout
	Webhooks           WebhookParser
	Tracker            Tracker
	Publisher          events.Publisher
	Issuer             *auth.Issuer
	Logger             *zap.Logger
	MembershipValidity time.Duration
}

type Handler struct {
	db                 *sql.DB
	checkout           Checkout
	webhooks           WebhookParser
	tracker            Tracker
	publisher          events.Publisher
	logger             *zap.Logger
	membershipValidity time.Duration
}

func NewRouter(d Deps, cfg config.ServerConfig) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	useJSONFieldNames()

	h := &Handler{
		db:                 d.DB,
		checkout:           d.Checkout,
		webhooks:           d.Webhooks,
		tracker:            d.Tracker,
		publisher:          d.Publisher,
		logger:             d.Logger,
		membershipValidity: d.MembershipValidity,
	}

	r := gin.New()
	r.Use(gin.Recovery(), TraceID(), RequestLogger(d.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", traceHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", traceHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		respondMessage(c, http.StatusNotFound, "not found", nil)
	})

	r.GET("/health", h.Health)
	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/discounts", h.ListDiscounts)
	r.GET("/tracking/:number", h.Track)
	r.POST("/webhooks/stripe", h.StripeWebhook)

	user := r.Group("/", Authenticate(d.Issuer))
	{
		user.GET("/cart", h.GetCart)
		user.POST("/cart/items", h.AddCartItem)
		user.PUT("/cart/items/:productID", h.UpdateCartItem)
		user.DELETE("/cart/items/:productID", h.RemoveCartItem)

		user.POST("/checkout/quote", h.Quote)
		user.POST("/checkout", h.PlaceOrder)

		user.GET("/orders", h.ListMyOrders)
		user.GET("/orders/:id", h.GetMyOrder)
		user.POST("/orders/:id/return", h.RequestReturn)

		user.POST("/membership/requests", h.RequestMembership)
		user.GET("/membership", h.GetMembership)
	}

	admin := r.Group("/admin", Authenticate(d.Issuer), RequireAdmin())
	{
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.POST("/products", h.CreateProduct)
		admin.POST("/discounts", h.CreateDiscount)

		admin.GET("/orders", h.ListOrders)
		admin.POST("/orders/:id/confirm-payment", h.ConfirmPayment)
		admin.POST("/orders/:id/ship", h.ShipOrder)
		admin.POST("/orders/:id/complete", h.CompleteOrder)
		admin.POST("/orders/:id/cancel", h.CancelOrder)
		admin.POST("/orders/:id/settle", h.SettleOrder)

		admin.GET("/returns", h.ListReturns)
		admin.GET("/returns/:id", h.GetReturn)
		admin.POST("/returns/:id/resolve", h.ResolveReturn)

		admin.GET("/accounting", h.Accounting)
		admin.GET("/accounting/export", h.ExportAccounting)

		admin.GET("/membership/requests", h.ListMembershipRequests)
		admin.POST("/membership/requests/:id/process", h.ProcessMembershipRequest)
	}

	return r
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(name, name+" must be a positive integer", "id")
	}
	return id, nil
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			respondMessage(c, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}
	}
	respondOK(c, http.StatusOK, gin.H{"status": "ok"})
}
