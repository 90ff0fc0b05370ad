package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/hardware-store/internal/config"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/events"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/payment"
	"github.com/safar/hardware-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore keeps one user's cart and orders in memory.
type fakeStore struct {
	cart      []models.CartItem
	level     models.MembershipLevel
	discounts map[int64]models.Discount
	orders    map[int64]*models.Order
	nextID    int64
	cancelled []int64
}

func newFakeStore(items ...models.CartItem) *fakeStore {
	return &fakeStore{
		cart:      items,
		level:     models.LevelFree,
		discounts: map[int64]models.Discount{},
		orders:    map[int64]*models.Order{},
	}
}

func (f *fakeStore) GetCart(_ context.Context, userID int64) (*models.Cart, error) {
	return &models.Cart{UserID: userID, Items: f.cart}, nil
}

func (f *fakeStore) EffectiveLevel(context.Context, int64, time.Time) (models.MembershipLevel, error) {
	return f.level, nil
}

func (f *fakeStore) DiscountsByIDs(_ context.Context, ids []int64) ([]models.Discount, error) {
	var out []models.Discount
	for _, id := range ids {
		d, ok := f.discounts[id]
		if !ok {
			return nil, database.ErrDiscountNotFound
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) insert(req store.CreateOrderRequest, price store.Pricer) (*models.Order, error) {
	if len(f.cart) == 0 {
		return nil, database.ErrCartEmpty
	}
	totals, err := price(f.cart)
	if err != nil {
		return nil, err
	}
	f.nextID++
	o := &models.Order{
		ID:             f.nextID,
		UserID:         req.UserID,
		OrderNumber:    "ORD-TEST",
		Status:         models.OrderStatusPendingPayment,
		PaymentStatus:  models.PaymentUnpaid,
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		Subtotal:       totals.Subtotal,
		ShippingFee:    totals.ShippingFee,
		DiscountAmount: totals.DiscountAmount,
		TotalAmount:    totals.Total,
		Notes:          totals.Notes,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) copyCart(o *models.Order) {
	for _, item := range f.cart {
		o.Items = append(o.Items, models.OrderItem{OrderID: o.ID, ProductID: item.ProductID, Quantity: item.Quantity})
	}
	f.cart = nil
}

func (f *fakeStore) CreateOrderFromCart(_ context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error) {
	o, err := f.insert(req, price)
	if err != nil {
		return nil, err
	}
	f.copyCart(o)
	return o, nil
}

func (f *fakeStore) CreateTemporaryOrder(_ context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error) {
	return f.insert(req, price)
}

func (f *fakeStore) AttachStripeSession(_ context.Context, orderID int64, sessionID string) error {
	f.orders[orderID].StripeSessionID = sessionID
	return nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID int64) (*models.Order, error) {
	f.cancelled = append(f.cancelled, orderID)
	f.orders[orderID].Status = models.OrderStatusCancelled
	return f.orders[orderID], nil
}

func (f *fakeStore) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) FinalizeOrder(_ context.Context, orderID int64) (*models.Order, bool, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, false, database.ErrOrderNotFound
	}
	if o.PaymentStatus == models.PaymentPaid || o.Status == models.OrderStatusCancelled {
		return o, false, nil
	}
	f.copyCart(o)
	o.Status = models.OrderStatusPaid
	o.PaymentStatus = models.PaymentPaid
	return o, true, nil
}

type fakeGateway struct {
	err   error
	calls int
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, order *models.Order) (*payment.Session, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &payment.Session{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

type recorder struct {
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() {}

func hammer(qty int) models.CartItem {
	return models.CartItem{ProductID: 1, Title: "Hammer", UnitPrice: decimal.NewFromInt(250), Quantity: qty}
}

func newTestService(fs *fakeStore, gw *fakeGateway, pub events.Publisher, logger *zap.Logger) *Service {
	svc := NewService(fs, gw, pub, config.CheckoutConfig{
		ShippingFee:    decimal.NewFromInt(100),
		TotalTolerance: decimal.NewFromInt(1),
	}, logger)
	svc.now = func() time.Time { return now }
	return svc
}

func TestQuote(t *testing.T) {
	fs := newFakeStore(hammer(4))
	fs.discounts[1] = models.Discount{
		ID: 1, Name: "Pickup 10%", ValueType: models.ValuePercentage, Value: decimal.NewFromInt(10),
		PickupOnly: true, Active: true, StartAt: now.Add(-time.Hour),
	}
	svc := newTestService(fs, &fakeGateway{}, events.Nop{}, zap.NewNop())

	t.Run("pickup applies the discount", func(t *testing.T) {
		q, err := svc.Quote(context.Background(), QuoteInput{UserID: 1, ShippingMethod: models.ShippingPickup, DiscountIDs: []int64{1}})
		require.NoError(t, err)
		assert.True(t, q.FinalTotal.Equal(decimal.NewFromInt(900)))
		assert.True(t, q.DiscountAmount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("delivery rejects a pickup discount", func(t *testing.T) {
		q, err := svc.Quote(context.Background(), QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery, DiscountIDs: []int64{1}})
		require.NoError(t, err)
		assert.True(t, q.FinalTotal.Equal(decimal.NewFromInt(1100)))
		require.Len(t, q.Rejected, 1)
	})

	t.Run("unknown discount", func(t *testing.T) {
		_, err := svc.Quote(context.Background(), QuoteInput{UserID: 1, DiscountIDs: []int64{99}})
		assert.ErrorIs(t, err, database.ErrDiscountNotFound)
	})
}

func TestQuoteEmptyCart(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeGateway{}, events.Nop{}, zap.NewNop())

	_, err := svc.Quote(context.Background(), QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery})
	assert.ErrorIs(t, err, database.ErrCartEmpty)
}

func TestPlaceOrderBankTransfer(t *testing.T) {
	fs := newFakeStore(hammer(2))
	gw := &fakeGateway{}
	svc := newTestService(fs, gw, events.Nop{}, zap.NewNop())

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentBankTransfer,
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPendingPayment, res.Order.Status)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(600)))
	assert.Len(t, res.Order.Items, 1)
	assert.Empty(t, fs.cart)
	assert.Zero(t, gw.calls)
	assert.Empty(t, res.CheckoutURL)
}

func TestPlaceOrderRecordsAppliedDiscounts(t *testing.T) {
	fs := newFakeStore(hammer(4))
	fs.discounts[5] = models.Discount{
		ID: 5, Name: "Spring sale", ValueType: models.ValueFixed, Value: decimal.NewFromInt(50),
		Active: true, StartAt: now.Add(-time.Hour),
	}
	svc := newTestService(fs, &fakeGateway{}, events.Nop{}, zap.NewNop())

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingPickup, DiscountIDs: []int64{5}},
		PaymentMethod: models.PaymentBankTransfer,
	})
	require.NoError(t, err)

	assert.Contains(t, res.Order.Notes, "Spring sale (#5) -50.00")
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(950)))
}

func TestPlaceOrderClientTotalMismatch(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	fs := newFakeStore(hammer(2))
	svc := newTestService(fs, &fakeGateway{}, events.Nop{}, zap.New(core))

	client := decimal.NewFromInt(1)
	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentBankTransfer,
		ClientTotal:   &client,
	})
	require.NoError(t, err)

	assert.True(t, res.PriceAdjusted)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(600)), "server total is charged")
	assert.Equal(t, 1, logs.FilterMessage("client total differs from server total").Len())
}

func TestPlaceOrderClientTotalWithinTolerance(t *testing.T) {
	fs := newFakeStore(hammer(2))
	svc := newTestService(fs, &fakeGateway{}, events.Nop{}, zap.NewNop())

	client := decimal.RequireFromString("599.5")
	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentBankTransfer,
		ClientTotal:   &client,
	})
	require.NoError(t, err)
	assert.False(t, res.PriceAdjusted)
}

func TestPlaceOrderStripeKeepsCartUntilWebhook(t *testing.T) {
	fs := newFakeStore(hammer(2))
	pub := &recorder{}
	svc := newTestService(fs, &fakeGateway{}, pub, zap.NewNop())

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 7, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentStripe,
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.test/cs_1", res.CheckoutURL)
	assert.Equal(t, "cs_1", fs.orders[res.Order.ID].StripeSessionID)
	assert.Len(t, fs.cart, 1)
	assert.Empty(t, res.Order.Items)

	completed := payment.CompletedPayment{SessionID: "cs_1", OrderID: res.Order.ID, UserID: 7}

	order, err := svc.HandlePaymentCompleted(context.Background(), completed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Len(t, order.Items, 1)
	assert.Empty(t, fs.cart)

	replayed, err := svc.HandlePaymentCompleted(context.Background(), completed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, replayed.Status)
	assert.Len(t, replayed.Items, 1, "replay must not duplicate items")

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.OrderPaid, pub.events[0].Type)
}

func TestPlaceOrderStripeSessionFailureCancels(t *testing.T) {
	fs := newFakeStore(hammer(1))
	gw := &fakeGateway{err: errors.New("stripe down")}
	svc := newTestService(fs, gw, events.Nop{}, zap.NewNop())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentStripe,
	})
	require.Error(t, err)
	assert.Equal(t, []int64{1}, fs.cancelled)
	assert.Len(t, fs.cart, 1)
}

func TestPlaceOrderStripeZeroTotalFinalizes(t *testing.T) {
	fs := newFakeStore(hammer(1))
	fs.discounts[2] = models.Discount{
		ID: 2, Name: "Gift card", ValueType: models.ValueFixed, Value: decimal.NewFromInt(1000),
		Active: true, StartAt: now.Add(-time.Hour),
	}
	gw := &fakeGateway{}
	svc := newTestService(fs, gw, events.Nop{}, zap.NewNop())

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingPickup, DiscountIDs: []int64{2}},
		PaymentMethod: models.PaymentStripe,
	})
	require.NoError(t, err)
	assert.Zero(t, gw.calls)
	assert.Equal(t, models.OrderStatusPaid, res.Order.Status)
	assert.True(t, res.Order.TotalAmount.IsZero())
}

func TestHandlePaymentCompletedRejectsMismatch(t *testing.T) {
	fs := newFakeStore(hammer(1))
	svc := newTestService(fs, &fakeGateway{}, events.Nop{}, zap.NewNop())

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentStripe,
	})
	require.NoError(t, err)

	_, err = svc.HandlePaymentCompleted(context.Background(), payment.CompletedPayment{SessionID: "cs_1", OrderID: res.Order.ID, UserID: 2})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	_, err = svc.HandlePaymentCompleted(context.Background(), payment.CompletedPayment{SessionID: "cs_other", OrderID: res.Order.ID, UserID: 1})
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	assert.Equal(t, models.PaymentUnpaid, fs.orders[res.Order.ID].PaymentStatus)
}

func TestHandlePaymentCompletedAfterCancellation(t *testing.T) {
	fs := newFakeStore(hammer(1))
	pub := &recorder{}
	core, logs := observer.New(zap.ErrorLevel)
	svc := newTestService(fs, &fakeGateway{}, pub, zap.New(core))

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		QuoteInput:    QuoteInput{UserID: 1, ShippingMethod: models.ShippingDelivery},
		PaymentMethod: models.PaymentStripe,
	})
	require.NoError(t, err)

	_, err = fs.CancelOrder(context.Background(), res.Order.ID)
	require.NoError(t, err)

	order, err := svc.HandlePaymentCompleted(context.Background(), payment.CompletedPayment{SessionID: "cs_1", OrderID: res.Order.ID, UserID: 1})
	require.NoError(t, err, "late payment must be acknowledged")
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Empty(t, pub.events)

	entries := logs.FilterMessage("payment received for cancelled order, refund required").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cs_1", entries[0].ContextMap()["session_id"])
}
