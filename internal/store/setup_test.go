package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
	"github.com/safar/hardware-store/internal/store"
	"github.com/safar/hardware-store/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupTestDB starts a throwaway postgres and applies every migration.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")

	host, err := postgres.Host(ctx)
	require.NoError(t, err)

	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, database.Migrate(ctx, db, migrations.FS, "up", zap.NewNop()), "run migrations")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	return db
}

// sumPricer prices a cart at face value plus a flat fee.
func sumPricer(fee decimal.Decimal) store.Pricer {
	return func(items []models.CartItem) (store.Totals, error) {
		subtotal := decimal.Zero
		for _, item := range items {
			subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		return store.Totals{
			Subtotal:       subtotal,
			ShippingFee:    fee,
			DiscountAmount: decimal.Zero,
			Total:          subtotal.Add(fee),
		}, nil
	}
}

func mustUser(t *testing.T, db *sql.DB, email string) *models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), db, email, "Test User", models.RoleUser)
	require.NoError(t, err)
	return user
}

func mustProduct(t *testing.T, db *sql.DB, sku string, price int64, stock int) *models.Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), db, store.NewProduct{
		SKU:   sku,
		Name:  "Product " + sku,
		Unit:  "pcs",
		Price: decimal.NewFromInt(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return product
}

func orderRequest(userID int64, method models.PaymentMethod) store.CreateOrderRequest {
	return store.CreateOrderRequest{
		UserID:         userID,
		PaymentMethod:  method,
		ShippingMethod: models.ShippingDelivery,
		Shipping: models.ShippingInfo{
			RecipientName: "Test User",
			Phone:         "0912345678",
			Address:       "1 Test Road",
		},
	}
}

// placePaidOrder checks out a single line and confirms the bank transfer.
func placePaidOrder(t *testing.T, db *sql.DB, userID, productID int64, quantity int) *models.Order {
	t.Helper()
	ctx := context.Background()

	_, err := store.AddCartItem(ctx, db, userID, productID, "", quantity)
	require.NoError(t, err)

	order, err := store.CreateOrderFromCart(ctx, db, orderRequest(userID, models.PaymentBankTransfer), sumPricer(decimal.NewFromInt(100)))
	require.NoError(t, err)

	order, err = store.ConfirmPayment(ctx, db, order.ID)
	require.NoError(t, err)
	return order
}
