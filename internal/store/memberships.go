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

const requestColumns = `id, user_id, requested_level, status, note, created_at, processed_at`

func scanRequest(row interface{ Scan(...any) error }, r *models.MembershipRequest) error {
	var processedAt sql.NullTime
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.RequestedLevel,
		&r.Status,
		&r.Note,
		&r.CreatedAt,
		&processedAt,
	)
	if err != nil {
		return err
	}
	if processedAt.Valid {
		r.ProcessedAt = &processedAt.Time
	}
	return nil
}

// RequestMembership opens an upgrade request. A user has at most one
// PENDING request, enforced by a partial unique index.
func RequestMembership(ctx context.Context, db *sql.DB, userID int64, level models.MembershipLevel, note string) (*models.MembershipRequest, error) {
	r := &models.MembershipRequest{}

	err := scanRequest(db.QueryRowContext(ctx,
		`INSERT INTO membership_requests (user_id, requested_level, status, note, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING `+requestColumns,
		userID, level, models.RequestPending, note), r)
	if err != nil {
		if database.IsUniqueViolation(err, "membership_requests_pending_key") {
			return nil, database.ErrPendingRequestExists
		}
		return nil, fmt.Errorf("request membership: %w", err)
	}

	return r, nil
}

// ProcessMembershipRequest approves or rejects a pending request. Approval
// sets the user's tier and grants or extends the membership window in the
// same transaction.
func ProcessMembershipRequest(ctx context.Context, db *sql.DB, requestID int64, approve bool, validity time.Duration) (*models.MembershipRequest, error) {
	r := &models.MembershipRequest{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanRequest(tx.QueryRowContext(ctx,
			`SELECT `+requestColumns+` FROM membership_requests WHERE id = $1 FOR UPDATE`, requestID), r)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrRequestNotFound
			}
			return fmt.Errorf("lock membership request: %w", err)
		}
		if r.Status != models.RequestPending {
			return database.ErrRequestProcessed
		}

		now := time.Now()
		r.ProcessedAt = &now
		r.Status = models.RequestRejected

		if approve {
			r.Status = models.RequestApproved

			existing, err := getMembership(ctx, tx, r.UserID, true)
			if err != nil && !errors.Is(err, database.ErrMembershipNotFound) {
				return err
			}
			start, end := lifecycle.MembershipWindow(existing, now, validity)

			_, err = tx.ExecContext(ctx,
				`INSERT INTO user_memberships (user_id, level, start_at, end_at, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, NOW(), NOW())
				 ON CONFLICT (user_id)
				 DO UPDATE SET level = EXCLUDED.level, start_at = EXCLUDED.start_at,
				               end_at = EXCLUDED.end_at, updated_at = NOW()`,
				r.UserID, r.RequestedLevel, start, end)
			if err != nil {
				return fmt.Errorf("upsert membership: %w", err)
			}

			if err := setMembershipLevel(ctx, tx, r.UserID, r.RequestedLevel); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE membership_requests SET status = $1, processed_at = $2 WHERE id = $3`,
			r.Status, now, r.ID)
		if err != nil {
			return fmt.Errorf("process membership request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// GetMembership returns ErrMembershipNotFound when no window was ever granted.
func GetMembership(ctx context.Context, q database.Querier, userID int64) (*models.UserMembership, error) {
	return getMembership(ctx, q, userID, false)
}

func getMembership(ctx context.Context, q database.Querier, userID int64, forUpdate bool) (*models.UserMembership, error) {
	query := `SELECT id, user_id, level, start_at, end_at, created_at, updated_at
		FROM user_memberships WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	m := &models.UserMembership{}
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&m.ID,
		&m.UserID,
		&m.Level,
		&m.StartAt,
		&m.EndAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// EffectiveLevel is the tier pricing should use for the user right now.
func EffectiveLevel(ctx context.Context, q database.Querier, userID int64, now time.Time) (models.MembershipLevel, error) {
	user, err := GetUser(ctx, q, userID)
	if err != nil {
		return "", err
	}

	m, err := GetMembership(ctx, q, userID)
	if err != nil && !errors.Is(err, database.ErrMembershipNotFound) {
		return "", err
	}

	return lifecycle.EffectiveLevel(user.MembershipLevel, m, now), nil
}

func ListMembershipRequests(ctx context.Context, db *sql.DB, status models.RequestStatus) ([]models.MembershipRequest, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+requestColumns+`
		 FROM membership_requests
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("list membership requests: %w", err)
	}
	defer rows.Close()

	out := []models.MembershipRequest{}
	for rows.Next() {
		var r models.MembershipRequest
		if err := scanRequest(rows, &r); err != nil {
			return nil, fmt.Errorf("scan membership request: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}
