package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/hardware-store/internal/database"
	"github.com/safar/hardware-store/internal/models"
)

const userColumns = `id, email, name, role, membership_level, created_at, updated_at, version`

func scanUser(row interface{ Scan(...any) error }, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.MembershipLevel,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

func CreateUser(ctx context.Context, db *sql.DB, email, name string, role models.Role) (*models.User, error) {
	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{}
	query := `
		INSERT INTO users (email, name, role, membership_level, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, email, name, role, models.LevelFree), user)
	if err != nil {
		if database.IsUniqueViolation(err, "users_email_key") {
			return nil, database.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func ListUsers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}

func setMembershipLevel(ctx context.Context, tx *sql.Tx, userID int64, level models.MembershipLevel) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE users
		 SET membership_level = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		level, userID)
	if err != nil {
		return fmt.Errorf("set membership level: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}
	return nil
}
