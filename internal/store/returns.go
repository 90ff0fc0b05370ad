package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/lifecycle"
	"github.com/safar/hardware-store/internal/models"
)

const returnColumns = `id, order_id, user_id, reason, status, admin_note, created_at, resolved_at`

func scanReturn(row interface{ Scan(...any) error }, r *models.ReturnRequest) error {
	var resolvedAt sql.NullTime
	err := row.Scan(
		&r.ID,
		&r.OrderID,
		&r.UserID,
		&r.Reason,
		&r.Status,
		&r.AdminNote,
		&r.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return err
	}
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	return nil
}

// CreateReturnRequest files a return for one of the user's own orders and
// moves the order to return_requested in the same transaction. An order
// that belongs to someone else is reported as not found.
func CreateReturnRequest(ctx context.Context, db *sql.DB, userID, orderID int64, reason string) (*models.ReturnRequest, error) {
	rr := &models.ReturnRequest{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return database.ErrOrderNotFound
		}

		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM return_requests WHERE order_id = $1)`, orderID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check return request: %w", err)
		}
		if exists {
			return database.ErrReturnExists
		}

		if !lifecycle.CanRequestReturn(order.Status) {
			return database.ErrReturnNotAllowed
		}

		err = scanReturn(tx.QueryRowContext(ctx,
			`INSERT INTO return_requests (order_id, user_id, reason, status, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 RETURNING `+returnColumns,
			orderID, userID, reason, models.ReturnPending), rr)
		if err != nil {
			if database.IsUniqueViolation(err, "return_requests_order_id_key") {
				return database.ErrReturnExists
			}
			return fmt.Errorf("create return request: %w", err)
		}

		return setOrderStatus(ctx, tx, order, models.OrderStatusReturnRequested)
	})
	if err != nil {
		return nil, err
	}

	return rr, nil
}

// ResolveReturnRequest records an admin decision and mirrors it onto the
// order status. A refund also flips the payment status.
func ResolveReturnRequest(ctx context.Context, db *sql.DB, returnID int64, decision models.ReturnStatus, adminNote string) (*models.ReturnRequest, error) {
	rr := &models.ReturnRequest{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanReturn(tx.QueryRowContext(ctx,
			`SELECT `+returnColumns+` FROM return_requests WHERE id = $1 FOR UPDATE`, returnID), rr)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrReturnNotFound
			}
			return fmt.Errorf("lock return request: %w", err)
		}

		if !lifecycle.CanResolveReturn(rr.Status, decision) {
			return database.ErrReturnResolved
		}

		target, err := lifecycle.OrderStatusForReturn(decision)
		if err != nil {
			return err
		}

		order, err := lockOrder(ctx, tx, rr.OrderID)
		if err != nil {
			return err
		}
		if err := setOrderStatus(ctx, tx, order, target); err != nil {
			return err
		}

		now := time.Now()
		rr.Status = decision
		rr.ResolvedAt = &now
		if adminNote != "" {
			rr.AdminNote = adminNote
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE return_requests SET status = $1, admin_note = $2, resolved_at = $3 WHERE id = $4`,
			rr.Status, rr.AdminNote, now, rr.ID)
		if err != nil {
			return fmt.Errorf("resolve return request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rr, nil
}

func GetReturnRequest(ctx context.Context, q database.Querier, id int64) (*models.ReturnRequest, error) {
	rr := &models.ReturnRequest{}
	err := scanReturn(q.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, id), rr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrReturnNotFound
		}
		return nil, fmt.Errorf("get return request: %w", err)
	}
	return rr, nil
}

func GetReturnRequestByOrder(ctx context.Context, q database.Querier, orderID int64) (*models.ReturnRequest, error) {
	rr := &models.ReturnRequest{}
	err := scanReturn(q.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests WHERE order_id = $1`, orderID), rr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrReturnNotFound
		}
		return nil, fmt.Errorf("get return request: %w", err)
	}
	return rr, nil
}

// ListReturnRequests lists returns in the given status, oldest first. An
// empty status lists all of them.
func ListReturnRequests(ctx context.Context, db *sql.DB, status models.ReturnStatus) ([]models.ReturnRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+returnColumns+`
		 FROM return_requests
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("list return requests: %w", err)
	}
	defer rows.Close()

	out := []models.ReturnRequest{}
	for rows.Next() {
		var rr models.ReturnRequest
		if err := scanReturn(rows, &rr); err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		out = append(out, rr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
