// Package payment creates hosted checkout sessions with Stripe and verifies
// the webhooks Stripe sends back.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrBadMetadata is a correctly signed session that does not name an order.
	ErrBadMetadata = errors.New("checkout session metadata is missing or malformed")
)

// Metadata keys written on the session and read back from the webhook.
const (
	MetaOrderID = "order_id"
	MetaUserID  = "user_id"
)

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CompletedPayment is what a checkout.session.completed event tells us.
type CompletedPayment struct {
	SessionID string
	OrderID   int64
	UserID    int64
}

type Gateway struct {
	api *client.API
	cfg config.StripeConfig
}

func NewGateway(cfg config.StripeConfig) *Gateway {
	return &Gateway{api: client.New(cfg.SecretKey, nil), cfg: cfg}
}

// MinorUnits converts an amount to the smallest currency unit Stripe expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateCheckoutSession charges the order's stored total as a single line.
// Item prices were already fixed by the server when the order was created.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, order *models.Order) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(order.OrderNumber),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(g.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + order.OrderNumber),
					},
					UnitAmount: stripe.Int64(MinorUnits(order.TotalAmount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetaOrderID, strconv.FormatInt(order.ID, 10))
	params.AddMetadata(MetaUserID, strconv.FormatInt(order.UserID, 10))

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &Session{ID: s.ID, URL: s.URL}, nil
}

// ParseWebhook verifies the signature and extracts a completed payment.
// Events of any other type, and sessions that are not yet paid, return
// (nil, nil) so the caller can acknowledge them without acting.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*CompletedPayment, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", ErrBadMetadata, err)
	}

	if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}

	orderID, err := strconv.ParseInt(s.Metadata[MetaOrderID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s %s: %v", ErrBadMetadata, s.ID, MetaOrderID, err)
	}
	userID, err := strconv.ParseInt(s.Metadata[MetaUserID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s %s: %v", ErrBadMetadata, s.ID, MetaUserID, err)
	}

	return &CompletedPayment{SessionID: s.ID, OrderID: orderID, UserID: userID}, nil
}
