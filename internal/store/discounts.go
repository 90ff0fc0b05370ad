package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
	"github.com/shopspring/decimal"
)

type NewDiscount struct {
	Name       string
	Type       models.DiscountType
	ValueType  models.DiscountValueType
	Value      decimal.Decimal
	MinAmount  *decimal.Decimal
	StartAt    time.Time
	EndAt      *time.Time
	Code       *string
	MemberOnly bool
	PickupOnly bool
	Exclusive  bool
}

const discountColumns = `id, name, type, value_type, value, min_amount, start_at, end_at, code,
	member_only, pickup_only, exclusive, active, created_at, updated_at`

func scanDiscount(row interface{ Scan(...any) error }, d *models.Discount) error {
	var (
		minAmount decimal.NullDecimal
		endAt     sql.NullTime
		code      sql.NullString
	)

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Type,
		&d.ValueType,
		&d.Value,
		&minAmount,
		&d.StartAt,
		&endAt,
		&code,
		&d.MemberOnly,
		&d.PickupOnly,
		&d.Exclusive,
		&d.Active,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if minAmount.Valid {
		d.MinAmount = &minAmount.Decimal
	}
	if endAt.Valid {
		d.EndAt = &endAt.Time
	}
	if code.Valid {
		d.Code = &code.String
	}
	return nil
}

// CreateDiscount derives the member/pickup gates from the type tag when the
// caller did not set them explicitly.
func CreateDiscount(ctx context.Context, db *sql.DB, nd NewDiscount) (*models.Discount, error) {
	memberOnly := nd.MemberOnly || nd.Type == models.DiscountMember
	pickupOnly := nd.PickupOnly || nd.Type == models.DiscountPickup

	startAt := nd.StartAt
	if startAt.IsZero() {
		startAt = time.Now()
	}

	var minAmount decimal.NullDecimal
	if nd.MinAmount != nil {
		minAmount = decimal.NullDecimal{Decimal: *nd.MinAmount, Valid: true}
	}

	d := &models.Discount{}
	query := `
		INSERT INTO discounts (name, type, value_type, value, min_amount, start_at, end_at, code,
			member_only, pickup_only, exclusive, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, NOW(), NOW())
		RETURNING ` + discountColumns

	err := scanDiscount(db.QueryRowContext(ctx, query,
		nd.Name, nd.Type, nd.ValueType, nd.Value, minAmount, startAt, nd.EndAt, nd.Code,
		memberOnly, pickupOnly, nd.Exclusive), d)
	if err != nil {
		if database.IsUniqueViolation(err, "discounts_code_key") {
			return nil, database.ErrDuplicateCode
		}
		return nil, fmt.Errorf("create discount: %w", err)
	}

	return d, nil
}

func GetDiscountByCode(ctx context.Context, q database.Querier, code string) (*models.Discount, error) {
	d := &models.Discount{}

	query := `SELECT ` + discountColumns + ` FROM discounts WHERE code = $1`

	if err := scanDiscount(q.QueryRowContext(ctx, query, code), d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrDiscountNotFound
		}
		return nil, fmt.Errorf("get discount by code: %w", err)
	}

	return d, nil
}

// ListValidDiscounts returns active discounts whose window contains now.
func ListValidDiscounts(ctx context.Context, q database.Querier, now time.Time) ([]models.Discount, error) {
	query := `
		SELECT ` + discountColumns + `
		FROM discounts
		WHERE active
		  AND start_at <= $1
		  AND (end_at IS NULL OR end_at >= $1)
		ORDER BY id`

	return queryDiscounts(ctx, q, query, now)
}

// GetDiscountsByIDs loads the selected discounts in the order the ids were
// given. An unknown id fails the whole lookup with ErrDiscountNotFound.
func GetDiscountsByIDs(ctx context.Context, q database.Querier, ids []int64) ([]models.Discount, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + discountColumns + ` FROM discounts WHERE id = ANY($1)`

	found, err := queryDiscounts(ctx, q, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Discount, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}

	seen := make(map[int64]bool, len(ids))
	ordered := make([]models.Discount, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", database.ErrDiscountNotFound, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, d)
	}

	return ordered, nil
}

func queryDiscounts(ctx context.Context, q database.Querier, query string, args ...any) ([]models.Discount, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	discounts := []models.Discount{}
	for rows.Next() {
		var d models.Discount
		if err := scanDiscount(rows, &d); err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		discounts = append(discounts, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return discounts, nil
}
