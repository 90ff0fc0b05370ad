package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/lifecycle"
	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
)

// Totals is what the checkout computed for the locked cart.
type Totals struct {
	Subtotal       decimal.Decimal
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
	Notes          string
}

// Pricer prices the cart as it is under lock, so the stored totals always
// describe the items that were actually copied.
type Pricer func(items []models.CartItem) (Totals, error)

type CreateOrderRequest struct {
	UserID         int64
	PaymentMethod  models.PaymentMethod
	ShippingMethod models.ShippingMethod
	Shipping       models.ShippingInfo
}

func generateOrderNumber() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102"),
		strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]))
}

const orderColumns = `id, user_id, order_number, status, payment_status, payment_method, shipping_method,
	recipient_name, recipient_phone, shipping_address, subtotal, shipping_fee, discount_amount,
	total_amount, notes, tracking_number, stripe_session_id, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, o *models.Order) error {
	return row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.ShippingMethod,
		&o.Shipping.RecipientName,
		&o.Shipping.Phone,
		&o.Shipping.Address,
		&o.Subtotal,
		&o.ShippingFee,
		&o.DiscountAmount,
		&o.TotalAmount,
		&o.Notes,
		&o.TrackingNumber,
		&o.StripeSessionID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
}

func insertOrder(ctx context.Context, tx *sql.Tx, req CreateOrderRequest, totals Totals) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, order_number, status, payment_status, payment_method, shipping_method,
			recipient_name, recipient_phone, shipping_address, subtotal, shipping_fee, discount_amount,
			total_amount, notes, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW(), 1)
		RETURNING ` + orderColumns

	err := scanOrder(tx.QueryRowContext(ctx, query,
		req.UserID,
		generateOrderNumber(),
		models.OrderStatusPendingPayment,
		models.PaymentUnpaid,
		req.PaymentMethod,
		req.ShippingMethod,
		req.Shipping.RecipientName,
		req.Shipping.Phone,
		req.Shipping.Address,
		totals.Subtotal,
		totals.ShippingFee,
		totals.DiscountAmount,
		totals.Total,
		totals.Notes,
	), order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

// copyCartItems snapshots cart lines into order items and takes the stock.
// With allowBackorder a stock shortfall is returned as a list of titles
// instead of failing; payment has already been taken in that case.
func copyCartItems(ctx context.Context, tx *sql.Tx, orderID int64, items []models.CartItem, allowBackorder bool) ([]models.OrderItem, []string, error) {
	var (
		out       []models.OrderItem
		backorder []string
	)

	for _, item := range items {
		subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

		oi := models.OrderItem{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Title:     item.Title,
			Variant:   item.Variant,
			ImageURL:  item.ImageURL,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  subtotal,
		}

		if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			if !allowBackorder || !errors.Is(err, database.ErrInsufficientStock) {
				return nil, nil, err
			}
			oi.Backordered = true
			backorder = append(backorder, item.Title)
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, title, variant, image_url, quantity, unit_price, subtotal, backordered, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			 RETURNING id, created_at`,
			orderID, item.ProductID, item.Title, item.Variant, item.ImageURL, item.Quantity, item.UnitPrice, subtotal, oi.Backordered,
		).Scan(&oi.ID, &oi.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("create order item: %w", err)
		}
		out = append(out, oi)
	}

	return out, backorder, nil
}

// CreateOrderFromCart turns the user's cart into an order in one
// transaction: order row, item snapshot, stock, and cart clear commit
// together or not at all. The order starts in pending_payment.
func CreateOrderFromCart(ctx context.Context, db *sql.DB, req CreateOrderRequest, price Pricer) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := lockCart(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		totals, err := price(cart.Items)
		if err != nil {
			return err
		}

		order, err = insertOrder(ctx, tx, req, totals)
		if err != nil {
			return err
		}

		order.Items, _, err = copyCartItems(ctx, tx, order.ID, cart.Items, false)
		if err != nil {
			return err
		}

		return clearCart(ctx, tx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CreateTemporaryOrder records a pending_payment order for a payment
// provider redirect. The cart is priced but left intact; FinalizeOrder
// copies it once payment is confirmed.
func CreateTemporaryOrder(ctx context.Context, db *sql.DB, req CreateOrderRequest, price Pricer) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cart, err := lockCart(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		totals, err := price(cart.Items)
		if err != nil {
			return err
		}

		order, err = insertOrder(ctx, tx, req, totals)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func AttachStripeSession(ctx context.Context, db *sql.DB, orderID int64, sessionID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE orders SET stripe_session_id = $1, updated_at = NOW() WHERE id = $2`,
		sessionID, orderID)
	if err != nil {
		return fmt.Errorf("attach stripe session: %w", err)
	}
	return requireAffected(result, database.ErrOrderNotFound)
}

// FinalizeOrder completes a temporary order after out-of-band payment
// confirmation. It is idempotent: an order that is already past
// pending_payment is returned untouched with finalized=false, so replayed
// webhooks never duplicate items.
// A payment for an order cancelled in the meantime is acknowledged with
// finalized=false and a refund note on the order.
func FinalizeOrder(ctx context.Context, db *sql.DB, orderID int64) (order *models.Order, finalized bool, err error) {
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if order.PaymentStatus == models.PaymentPaid {
			return nil
		}
		if order.Status == models.OrderStatusCancelled {
			return noteLatePayment(ctx, tx, order)
		}
		if err := lifecycle.Transition(order.Status, models.OrderStatusPaid); err != nil {
			return err
		}

		var notes []string
		if order.Notes != "" {
			notes = append(notes, order.Notes)
		}

		existing, err := orderItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			cart, err := lockCart(ctx, tx, order.UserID)
			switch {
			case errors.Is(err, database.ErrCartEmpty):
				notes = append(notes, "cart was empty at payment confirmation")
			case err != nil:
				return err
			default:
				items, backorder, err := copyCartItems(ctx, tx, order.ID, cart.Items, true)
				if err != nil {
					return err
				}
				if len(backorder) > 0 {
					notes = append(notes, "backorder: "+strings.Join(backorder, ", "))
				}
				if paid := itemsSubtotal(items); !paid.Equal(order.Subtotal) {
					notes = append(notes, fmt.Sprintf("cart changed after checkout: items subtotal %s", paid.StringFixed(2)))
				}
				if err := clearCart(ctx, tx, cart.ID); err != nil {
					return err
				}
			}
		}

		order.Status = models.OrderStatusPaid
		order.PaymentStatus = models.PaymentPaid
		order.Notes = strings.Join(notes, "\n")

		_, err = tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1, payment_status = $2, notes = $3, version = version + 1, updated_at = NOW()
			 WHERE id = $4`,
			order.Status, order.PaymentStatus, order.Notes, order.ID)
		if err != nil {
			return fmt.Errorf("finalize order: %w", err)
		}

		finalized = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	order.Items, err = orderItems(ctx, db, order.ID)
	if err != nil {
		return nil, false, err
	}

	return order, finalized, nil
}

func itemsSubtotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	return total
}

const latePaymentNote = "payment received after cancellation: refund required"

func noteLatePayment(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	if strings.Contains(order.Notes, latePaymentNote) {
		return nil
	}
	if order.Notes != "" {
		order.Notes += "\n"
	}
	order.Notes += latePaymentNote

	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET notes = $1, updated_at = NOW() WHERE id = $2`,
		order.Notes, order.ID)
	if err != nil {
		return fmt.Errorf("note late payment: %w", err)
	}
	return nil
}

// ConfirmPayment marks a bank-transfer order as paid once an admin has
// matched the transfer.
func ConfirmPayment(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	return transition(ctx, db, orderID, models.OrderStatusPaid, nil)
}

func MarkShipped(ctx context.Context, db *sql.DB, orderID int64, trackingNumber string) (*models.Order, error) {
	return transition(ctx, db, orderID, models.OrderStatusShipped, func(tx *sql.Tx, o *models.Order) error {
		o.TrackingNumber = trackingNumber
		_, err := tx.ExecContext(ctx,
			`UPDATE orders SET tracking_number = $1 WHERE id = $2`, trackingNumber, o.ID)
		if err != nil {
			return fmt.Errorf("set tracking number: %w", err)
		}
		return nil
	})
}

func CompleteOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	return transition(ctx, db, orderID, models.OrderStatusCompleted, nil)
}

// CancelOrder puts back the stock the order's items took. Backordered
// lines took none and are skipped.
func CancelOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, error) {
	return transition(ctx, db, orderID, models.OrderStatusCancelled, func(tx *sql.Tx, o *models.Order) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE products p
			 SET stock_quantity = p.stock_quantity + oi.quantity, updated_at = NOW()
			 FROM order_items oi
			 WHERE oi.order_id = $1 AND oi.product_id = p.id AND NOT oi.backordered`,
			o.ID)
		if err != nil {
			return fmt.Errorf("restock cancelled order: %w", err)
		}
		return nil
	})
}

// transition moves an order to status under a row lock, running extra
// inside the same transaction.
func transition(ctx context.Context, db *sql.DB, orderID int64, status models.OrderStatus, extra func(*sql.Tx, *models.Order) error) (*models.Order, error) {
	var order *models.Order

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := setOrderStatus(ctx, tx, order, status); err != nil {
			return err
		}

		if extra != nil {
			return extra(tx, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, order *models.Order, status models.OrderStatus) error {
	if err := lifecycle.Transition(order.Status, status); err != nil {
		return err
	}

	order.Status = status
	order.PaymentStatus = lifecycle.PaymentStatusFor(status, order.PaymentStatus)

	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $3`,
		order.Status, order.PaymentStatus, order.ID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	order.Version++

	return nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	if err := scanOrder(tx.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := orderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func orderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, title, variant, image_url, quantity, unit_price, subtotal, backordered, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Title,
			&item.Variant,
			&item.ImageURL,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.Backordered,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrdersByStatus is the admin queue view; an empty status lists everything.
func ListOrdersByStatus(ctx context.Context, db *sql.DB, status models.OrderStatus, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE $1 = '' OR status = $1`, status).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := db.QueryContext(ctx, query, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}
