package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/checkout"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxWebhookBytes = int64(65536)

type quoteRequest struct {
	ShippingMethod models.ShippingMethod `json:"shipping_method" binding:"required,oneof=delivery pickup"`
	DiscountIDs    []int64               `json:"discount_ids" binding:"max=10,dive,gt=0"`
}

func (h *Handler) Quote(c *gin.Context) {
	var req quoteRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	quote, err := h.checkout.Quote(c.Request.Context(), checkout.QuoteInput{
		UserID:         userID(c),
		ShippingMethod: req.ShippingMethod,
		DiscountIDs:    req.DiscountIDs,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, quote)
}

type placeOrderRequest struct {
	ShippingMethod models.ShippingMethod `json:"shipping_method" binding:"required,oneof=delivery pickup"`
	PaymentMethod  models.PaymentMethod  `json:"payment_method" binding:"required,oneof=stripe bank_transfer"`
	DiscountIDs    []int64               `json:"discount_ids" binding:"max=10,dive,gt=0"`
	RecipientName  string                `json:"recipient_name" binding:"required,max=255"`
	Phone          string                `json:"phone" binding:"required,max=64"`
	Address        string                `json:"address" binding:"required_if=ShippingMethod delivery,max=500"`
	// FinalTotal is the total the client showed the customer.
	FinalTotal *decimal.Decimal `json:"final_total"`
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.checkout.PlaceOrder(c.Request.Context(), checkout.PlaceOrderInput{
		QuoteInput: checkout.QuoteInput{
			UserID:         userID(c),
			ShippingMethod: req.ShippingMethod,
			DiscountIDs:    req.DiscountIDs,
		},
		PaymentMethod: req.PaymentMethod,
		Shipping: models.ShippingInfo{
			RecipientName: strings.TrimSpace(req.RecipientName),
			Phone:         strings.TrimSpace(req.Phone),
			Address:       strings.TrimSpace(req.Address),
		},
		ClientTotal: req.FinalTotal,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, result)
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	page, err := store.ListOrdersCursor(c.Request.Context(), h.db, userID(c), c.Query("cursor"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// ownOrder loads an order the caller may see: their own, or any for admins.
func (h *Handler) ownOrder(c *gin.Context) (*models.Order, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return nil, err
	}

	order, err := store.GetOrder(c.Request.Context(), h.db, id)
	if err != nil {
		return nil, err
	}

	claims := claimsOf(c)
	if claims == nil || (order.UserID != claims.UserID && !claims.IsAdmin()) {
		return nil, errForbidden
	}
	return order, nil
}

func (h *Handler) GetMyOrder(c *gin.Context) {
	order, err := h.ownOrder(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

type returnRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

func (h *Handler) RequestReturn(c *gin.Context) {
	order, err := h.ownOrder(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req returnRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	rr, err := store.CreateReturnRequest(c.Request.Context(), h.db, order.UserID, order.ID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusCreated, rr)
}

// StripeWebhook finalizes orders from checkout.session.completed events.
// Anything else with a valid signature is acknowledged and ignored.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondMessage(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
		return
	}

	completed, err := h.webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("rejected stripe webhook", zap.String("trace_id", traceID(c)), zap.Error(err))
		h.fail(c, err)
		return
	}
	if completed == nil {
		respondOK(c, http.StatusOK, gin.H{"received": true})
		return
	}

	order, err := h.checkout.HandlePaymentCompleted(c.Request.Context(), *completed)
	if err != nil {
		h.logger.Warn("payment completion failed",
			zap.String("trace_id", traceID(c)),
			zap.Int64("order_id", completed.OrderID),
			zap.String("session_id", completed.SessionID),
			zap.Error(err),
		)
		h.fail(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"received": true, "order_id": order.ID, "status": order.Status})
}
