package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"carservice/internal/domain"
	"carservice/internal/model"
)

// AdminSeedRating is the rating given to the configured admin on first start.
const AdminSeedRating = 1000

const userColumns = `telegram_id, user_name, name, contact, role, rating, can_messages,
	car_brand, car_model, car_year, car_plate, car_vin, car_mileage, created_at, updated_at`

// RegisterUser creates the user on first contact and refreshes the username afterwards.
func (db *DB) RegisterUser(ctx context.Context, telegramID int64, userName string) (*model.User, bool, error) {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, user_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO NOTHING`,
		telegramID, userName, model.RoleUser, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("register user: %w", err)
	}
	created, _ := res.RowsAffected()
	if created == 0 && userName != "" {
		if _, err := db.ExecContext(ctx,
			"UPDATE users SET user_name = ? WHERE telegram_id = ? AND user_name != ?",
			userName, telegramID, userName,
		); err != nil {
			return nil, false, fmt.Errorf("refresh username: %w", err)
		}
	}
	u, err := db.GetUser(ctx, telegramID)
	return u, created > 0, err
}

// EnsureAdmin seeds the admin account; an existing user is promoted without touching the rating.
func (db *DB) EnsureAdmin(ctx context.Context, telegramID int64) error {
	if telegramID == 0 {
		return nil
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (telegram_id, role, rating, can_messages, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		telegramID, model.RoleAdmin, AdminSeedRating, now, now,
	)
	return err
}

func (db *DB) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE telegram_id = ?", telegramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user", telegramID)
	}
	return u, err
}

// UpdateProfile saves contact details and the vehicle profile.
func (db *DB) UpdateProfile(ctx context.Context, u *model.User) error {
	res, err := db.ExecContext(ctx, `
		UPDATE users SET name = ?, contact = ?,
			car_brand = ?, car_model = ?, car_year = ?, car_plate = ?, car_vin = ?, car_mileage = ?,
			updated_at = ?
		WHERE telegram_id = ?`,
		u.Name, u.Contact,
		u.Vehicle.Brand, u.Vehicle.Model, u.Vehicle.Year, u.Vehicle.Plate, u.Vehicle.VIN, u.Vehicle.Mileage,
		time.Now(), u.TelegramID,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("user", u.TelegramID)
	}
	return nil
}

func (db *DB) GetUserRole(ctx context.Context, telegramID int64) (model.Role, error) {
	var role model.Role
	err := db.QueryRowContext(ctx, "SELECT role FROM users WHERE telegram_id = ?", telegramID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound("user", telegramID)
	}
	return role, err
}

func (db *DB) SetUserRole(ctx context.Context, telegramID int64, role model.Role) error {
	if !role.Valid() {
		return domain.Validation("role", fmt.Sprintf("unknown role %q", role))
	}
	res, err := db.ExecContext(ctx,
		"UPDATE users SET role = ?, updated_at = ? WHERE telegram_id = ?",
		role, time.Now(), telegramID)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("user", telegramID)
	}
	return nil
}

func (db *DB) SetCanMessages(ctx context.Context, telegramID int64, enabled bool) error {
	_, err := db.ExecContext(ctx,
		"UPDATE users SET can_messages = ?, updated_at = ? WHERE telegram_id = ?",
		enabled, time.Now(), telegramID)
	return err
}

// ListUsersByRole returns users with any of the given roles ordered by rating.
func (db *DB) ListUsersByRole(ctx context.Context, roles ...model.Role) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	q := "SELECT " + userColumns + " FROM users WHERE role IN (?" + strings.Repeat(",?", len(roles)-1) + ") ORDER BY rating DESC, telegram_id"
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	return db.queryUsers(ctx, q, args...)
}

// ListBroadcastRecipients returns non-blocked users that accept messages.
func (db *DB) ListBroadcastRecipients(ctx context.Context) ([]model.User, error) {
	return db.queryUsers(ctx,
		"SELECT "+userColumns+" FROM users WHERE can_messages = 1 AND role != ? ORDER BY telegram_id",
		model.RoleBlocked)
}

func (db *DB) queryUsers(ctx context.Context, q string, args ...any) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.TelegramID, &u.UserName, &u.Name, &u.Contact, &u.Role, &u.Rating, &u.CanMessages,
		&u.Vehicle.Brand, &u.Vehicle.Model, &u.Vehicle.Year, &u.Vehicle.Plate, &u.Vehicle.VIN, &u.Vehicle.Mileage,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
