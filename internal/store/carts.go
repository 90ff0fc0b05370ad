package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
)

// GetCart returns the user's cart with items joined to their products. A user
// who never added anything gets an empty cart, not an error.
func GetCart(ctx context.Context, q database.Querier, userID int64) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}

	err := q.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM carts WHERE user_id = $1`,
		userID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := cartItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

// lockCart loads the cart under FOR UPDATE so concurrent checkouts of the
// same cart serialize on the cart row.
func lockCart(ctx context.Context, tx *sql.Tx, userID int64) (*models.Cart, error) {
	cart := &models.Cart{UserID: userID}

	err := tx.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartEmpty
		}
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	items, err := cartItems(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, database.ErrCartEmpty
	}
	cart.Items = items

	return cart, nil
}

func cartItems(ctx context.Context, q database.Querier, cartID int64) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.variant, ci.quantity, p.name, p.price, p.image_url
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.Variant,
			&item.Quantity,
			&item.Title,
			&item.UnitPrice,
			&item.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func ensureCart(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id`,
		userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("ensure cart: %w", err)
	}
	return cartID, nil
}

// AddCartItem merges quantity into an existing line for the same product and
// variant. The merged quantity may not exceed the product's stock.
func AddCartItem(ctx context.Context, db *sql.DB, userID, productID int64, variant string, quantity int) (*models.Cart, error) {
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		cartID, err := ensureCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		var merged int
		err = tx.QueryRowContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, variant, quantity, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, NOW(), NOW())
			 ON CONFLICT (cart_id, product_id, variant)
			 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
			 RETURNING quantity`,
			cartID, productID, variant, quantity).Scan(&merged)
		if err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}

		if merged > product.StockQuantity {
			return database.ErrInsufficientStock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return GetCart(ctx, db, userID)
}

// UpdateCartItem sets the quantity of one line; zero or less removes it.
func UpdateCartItem(ctx context.Context, db *sql.DB, userID, productID int64, variant string, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return RemoveCartItem(ctx, db, userID, productID, variant)
	}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if quantity > product.StockQuantity {
			return database.ErrInsufficientStock
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE cart_items ci
			 SET quantity = $1, updated_at = NOW()
			 FROM carts c
			 WHERE c.id = ci.cart_id AND c.user_id = $2 AND ci.product_id = $3 AND ci.variant = $4`,
			quantity, userID, productID, variant)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return requireAffected(result, database.ErrCartItemNotFound)
	})
	if err != nil {
		return nil, err
	}

	return GetCart(ctx, db, userID)
}

func RemoveCartItem(ctx context.Context, db *sql.DB, userID, productID int64, variant string) (*models.Cart, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM cart_items ci
		 USING carts c
		 WHERE c.id = ci.cart_id AND c.user_id = $1 AND ci.product_id = $2 AND ci.variant = $3`,
		userID, productID, variant)
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	if err := requireAffected(result, database.ErrCartItemNotFound); err != nil {
		return nil, err
	}

	return GetCart(ctx, db, userID)
}

func clearCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
