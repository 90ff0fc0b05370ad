package checkout

import (
	"context"
	"database/sql"
	"time"

	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
)

// SQLStore backs the checkout with the Postgres store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetCart(ctx context.Context, userID int64) (*models.Cart, error) {
	return store.GetCart(ctx, s.db, userID)
}

func (s *SQLStore) EffectiveLevel(ctx context.Context, userID int64, now time.Time) (models.MembershipLevel, error) {
	return store.EffectiveLevel(ctx, s.db, userID, now)
}

func (s *SQLStore) DiscountsByIDs(ctx context.Context, ids []int64) ([]models.Discount, error) {
	return store.GetDiscountsByIDs(ctx, s.db, ids)
}

func (s *SQLStore) CreateOrderFromCart(ctx context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error) {
	return store.CreateOrderFromCart(ctx, s.db, req, price)
}

func (s *SQLStore) CreateTemporaryOrder(ctx context.Context, req store.CreateOrderRequest, price store.Pricer) (*models.Order, error) {
	return store.CreateTemporaryOrder(ctx, s.db, req, price)
}

func (s *SQLStore) AttachStripeSession(ctx context.Context, orderID int64, sessionID string) error {
	return store.AttachStripeSession(ctx, s.db, orderID, sessionID)
}

func (s *SQLStore) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return store.CancelOrder(ctx, s.db, orderID)
}

func (s *SQLStore) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return store.GetOrder(ctx, s.db, orderID)
}

func (s *SQLStore) FinalizeOrder(ctx context.Context, orderID int64) (*models.Order, bool, error) {
	return store.FinalizeOrder(ctx, s.db, orderID)
}
