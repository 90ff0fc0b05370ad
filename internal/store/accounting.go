package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
)

// AccountingSummary totals the entries of one reporting window.
type AccountingSummary struct {
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
	Count          int                   `json:"count"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	ShippingAmount decimal.Decimal       `json:"shipping_amount"`
	ProductAmount  decimal.Decimal       `json:"product_amount"`
	Entries        []models.AccountEntry `json:"entries"`
}

// SettleOrder records the order's revenue split exactly once. Settling
// twice fails with ErrAlreadySettled, enforced by the unique order_id.
func SettleOrder(ctx context.Context, db *sql.DB, orderID int64) (*models.AccountEntry, error) {
	entry := &models.AccountEntry{OrderID: orderID}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus != models.PaymentPaid {
			return database.ErrNotPaid
		}

		entry.OrderNumber = order.OrderNumber
		entry.TotalAmount = order.TotalAmount
		entry.ShippingAmount = order.ShippingFee
		entry.ProductAmount = order.TotalAmount.Sub(order.ShippingFee)

		err = tx.QueryRowContext(ctx,
			`INSERT INTO account_entries (order_id, total_amount, shipping_amount, product_amount, settled_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 RETURNING id, settled_at`,
			orderID, entry.TotalAmount, entry.ShippingAmount, entry.ProductAmount,
		).Scan(&entry.ID, &entry.SettledAt)
		if err != nil {
			if database.IsUniqueViolation(err, "account_entries_order_id_key") {
				return database.ErrAlreadySettled
			}
			return fmt.Errorf("settle order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ListAccountEntries returns entries settled in [from, to).
func ListAccountEntries(ctx context.Context, db *sql.DB, from, to time.Time) ([]models.AccountEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ae.id, ae.order_id, o.order_number, ae.total_amount, ae.shipping_amount, ae.product_amount, ae.settled_at
		FROM account_entries ae
		JOIN orders o ON o.id = ae.order_id
		WHERE ae.settled_at >= $1 AND ae.settled_at < $2
		ORDER BY ae.settled_at, ae.id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list account entries: %w", err)
	}
	defer rows.Close()

	entries := []models.AccountEntry{}
	for rows.Next() {
		var e models.AccountEntry
		err := rows.Scan(
			&e.ID,
			&e.OrderID,
			&e.OrderNumber,
			&e.TotalAmount,
			&e.ShippingAmount,
			&e.ProductAmount,
			&e.SettledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

func SummarizeAccounting(ctx context.Context, db *sql.DB, from, to time.Time) (*AccountingSummary, error) {
	entries, err := ListAccountEntries(ctx, db, from, to)
	if err != nil {
		return nil, err
	}
	return Summarize(from, to, entries), nil
}

func Summarize(from, to time.Time, entries []models.AccountEntry) *AccountingSummary {
	s := &AccountingSummary{
		From:           from,
		To:             to,
		Count:          len(entries),
		TotalAmount:    decimal.Zero,
		ShippingAmount: decimal.Zero,
		ProductAmount:  decimal.Zero,
		Entries:        entries,
	}
	for _, e := range entries {
		s.TotalAmount = s.TotalAmount.Add(e.TotalAmount)
		s.ShippingAmount = s.ShippingAmount.Add(e.ShippingAmount)
		s.ProductAmount = s.ProductAmount.Add(e.ProductAmount)
	}
	return s
}
