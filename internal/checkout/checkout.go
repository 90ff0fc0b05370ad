// Package checkout turns a user's cart into an order. It prices the cart
// on the server, picks the payment flow, and finalizes orders once an
// out-of-band payment is confirmed.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/events"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/payment"
	"github.com/safar/hardware-store/internal/pricing"
	"github.com/safar/hardware-store/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrPaymentMismatch = errors.New("payment does not match the order")

// Store is the persistence the checkout needs.
type Store interface {
	GetCart(ctx context.Context, userID int64) (*models.Cart, error)
	EffectiveLevel(ctx context.Context, userID int64, now time.Time) (models.MembershipLevel, error)
	DiscountsByIDs(ctx context.Context, ids []int64) ([]models.Discount, error)
	CreateOrderFromCart(ctx context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error)
	CreateTemporaryOrder(ctx context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error)
	AttachStripeSession(ctx context.Context, orderID int64, sessionID string) error
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	FinalizeOrder(ctx context.Context, orderID int64) (*models.Order, bool, error)
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, order *models.Order) (*payment.Session, error)
}

type QuoteInput struct {
	UserID         int64
	ShippingMethod models.ShippingMethod
	DiscountIDs    []int64
}

type PlaceOrderInput struct {
	QuoteInput
	PaymentMethod models.PaymentMethod
	Shipping      models.ShippingInfo
	// ClientTotal is the total the client displayed, if it sent one.
	ClientTotal *decimal.Decimal
}

type PlaceOrderResult struct {
	Order *models.Order `json:"order"`
	Quote pricing.Quote `json:"quote"`
	// PriceAdjusted is set when the client's total disagreed with the server's.
	PriceAdjusted bool   `json:"price_adjusted"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
}

type Service struct {
	store     Store
	gateway   Gateway
	publisher events.Publisher
	cfg       config.CheckoutConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(s Store, gw Gateway, pub events.Publisher, cfg config.CheckoutConfig, logger *zap.Logger) *Service {
	return &Service{
		store:     s,
		gateway:   gw,
		publisher: pub,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// pricingContext is everything Evaluate needs besides the cart lines.
type pricingContext struct {
	level     models.MembershipLevel
	discounts []models.Discount
	now       time.Time
}

func (s *Service) loadPricingContext(ctx context.Context, in QuoteInput) (*pricingContext, error) {
	now := s.now()

	level, err := s.store.EffectiveLevel(ctx, in.UserID, now)
	if err != nil {
		return nil, err
	}

	discounts, err := s.store.DiscountsByIDs(ctx, in.DiscountIDs)
	if err != nil {
		return nil, err
	}

	return &pricingContext{level: level, discounts: discounts, now: now}, nil
}

func (s *Service) evaluate(pc *pricingContext, method models.ShippingMethod, items []models.CartItem) pricing.Quote {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.Line{
			ProductID: item.ProductID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return pricing.Evaluate(pricing.Input{
		Lines:          lines,
		ShippingMethod: method,
		Level:          pc.level,
		Discounts:      pc.discounts,
		Now:            pc.now,
		DeliveryFee:    s.cfg.ShippingFee,
	})
}

// Quote prices the stored cart without creating anything.
func (s *Service) Quote(ctx context.Context, in QuoteInput) (*pricing.Quote, error) {
	cart, err := s.store.GetCart(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, database.ErrCartEmpty
	}

	pc, err := s.loadPricingContext(ctx, in)
	if err != nil {
		return nil, err
	}

	q := s.evaluate(pc, in.ShippingMethod, cart.Items)
	return &q, nil
}

// auditNotes records which discounts were applied, for the order's notes.
func auditNotes(q pricing.Quote) string {
	if len(q.Applied) == 0 {
		return ""
	}
	parts := make([]string, 0, len(q.Applied))
	for _, a := range q.Applied {
		parts = append(parts, fmt.Sprintf("%s (#%d) -%s", a.Name, a.DiscountID, a.Amount.StringFixed(2)))
	}
	return "discounts: " + strings.Join(parts, "; ")
}

// PlaceOrder prices the cart under lock and creates the order. The server
// total is always the one charged. Bank transfers get a pending order and
// an emptied cart right away; Stripe gets a temporary order and a hosted
// checkout session, and the cart is copied when the webhook arrives.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	pc, err := s.loadPricingContext(ctx, in.QuoteInput)
	if err != nil {
		return nil, err
	}

	result := &PlaceOrderResult{}
	price := func(items []models.CartItem) (store.Totals, error) {
		q := s.evaluate(pc, in.ShippingMethod, items)
		result.Quote = q
		return store.Totals{
			Subtotal:       q.Subtotal,
			ShippingFee:    q.ShippingFee,
			DiscountAmount: q.DiscountAmount,
			Total:          q.FinalTotal,
			Notes:          auditNotes(q),
		}, nil
	}

	req := store.CreateOrderRequest{
		UserID:         in.UserID,
		PaymentMethod:  in.PaymentMethod,
		ShippingMethod: in.ShippingMethod,
		Shipping:       in.Shipping,
	}

	switch in.PaymentMethod {
	case models.PaymentBankTransfer:
		result.Order, err = s.store.CreateOrderFromCart(ctx, req, price)
		if err != nil {
			return nil, err
		}
	case models.PaymentStripe:
		result.Order, err = s.store.CreateTemporaryOrder(ctx, req, price)
		if err != nil {
			return nil, err
		}
		if err := s.startStripeCheckout(ctx, result); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported payment method %q", in.PaymentMethod)
	}

	if in.ClientTotal != nil && !pricing.WithinTolerance(result.Quote.FinalTotal, *in.ClientTotal, s.cfg.TotalTolerance) {
		result.PriceAdjusted = true
		s.logger.Warn("client total differs from server total",
			zap.Int64("user_id", in.UserID),
			zap.Int64("order_id", result.Order.ID),
			zap.String("client_total", in.ClientTotal.StringFixed(2)),
			zap.String("server_total", result.Quote.FinalTotal.StringFixed(2)),
		)
	}

	return result, nil
}

// startStripeCheckout opens a hosted session for a temporary order. A
// zero total cannot be charged, so such orders are finalized directly.
func (s *Service) startStripeCheckout(ctx context.Context, result *PlaceOrderResult) error {
	order := result.Order

	if !order.TotalAmount.IsPositive() {
		finalized, _, err := s.store.FinalizeOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		result.Order = finalized
		s.emitPaid(ctx, finalized)
		return nil
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, order)
	if err != nil {
		if _, cancelErr := s.store.CancelOrder(ctx, order.ID); cancelErr != nil {
			s.logger.Error("cancel order after failed checkout session",
				zap.Int64("order_id", order.ID), zap.Error(cancelErr))
		}
		return err
	}

	if err := s.store.AttachStripeSession(ctx, order.ID, session.ID); err != nil {
		return err
	}
	order.StripeSessionID = session.ID
	result.CheckoutURL = session.URL
	return nil
}

// HandlePaymentCompleted finalizes the order named by a verified webhook.
// Replays are harmless: an order that is already paid is returned as is
// and no second event is published.
func (s *Service) HandlePaymentCompleted(ctx context.Context, p payment.CompletedPayment) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != p.UserID {
		return nil, fmt.Errorf("%w: order %d belongs to user %d, not %d", ErrPaymentMismatch, order.ID, order.UserID, p.UserID)
	}
	if order.StripeSessionID != "" && order.StripeSessionID != p.SessionID {
		return nil, fmt.Errorf("%w: order %d session %s, got %s", ErrPaymentMismatch, order.ID, order.StripeSessionID, p.SessionID)
	}

	order, finalized, err := s.store.FinalizeOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCancelled {
		s.logger.Error("payment received for cancelled order, refund required",
			zap.Int64("order_id", order.ID),
			zap.String("order_number", order.OrderNumber),
			zap.String("session_id", p.SessionID),
		)
		return order, nil
	}

	if finalized {
		s.logger.Info("order finalized",
			zap.Int64("order_id", order.ID),
			zap.String("order_number", order.OrderNumber),
			zap.Int("items", len(order.Items)),
		)
		s.emitPaid(ctx, order)
	}

	return order, nil
}

func (s *Service) emitPaid(ctx context.Context, order *models.Order) {
	events.Emit(ctx, s.publisher, s.logger, events.Event{
		Type:        events.OrderPaid,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Amount:      order.TotalAmount,
	})
}
