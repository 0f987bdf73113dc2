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

const orderColumns = `id, client_id, master_id, status, complied, description,
	client_name, client_contact, master_name, master_contact,
	car_brand, car_model, car_year, car_plate, car_vin, car_mileage,
	grade, created_at, updated_at`

// CreateOrder inserts an order unless the pair already has an active one.
// The pair's appointment is consumed in the same transaction and returned.
func (db *DB) CreateOrder(ctx context.Context, o *model.Order) (*model.Appointment, error) {
	var removed *model.Appointment
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM orders WHERE client_id = ? AND master_id = ? AND status != ? LIMIT 1",
			o.ClientID, o.MasterID, model.OrderClosed,
		).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("check active order: %w", err)
		default:
			return domain.ConflictError{Resource: "order", Msg: "pair already has an active order", ExistingID: existingID}
		}

		now := time.Now()
		o.Status = model.OrderInWork
		o.Complied = false
		o.CreatedAt, o.UpdatedAt = now, now
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orders (client_id, master_id, status, complied, description,
				client_name, client_contact, master_name, master_contact,
				car_brand, car_model, car_year, car_plate, car_vin, car_mileage,
				grade, created_at, updated_at)
			VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			o.ClientID, o.MasterID, o.Status, o.Description,
			o.ClientName, o.ClientContact, o.MasterName, o.MasterContact,
			o.Vehicle.Brand, o.Vehicle.Model, o.Vehicle.Year, o.Vehicle.Plate, o.Vehicle.VIN, o.Vehicle.Mileage,
			now, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ConflictError{Resource: "order", Msg: "pair already has an active order"}
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		prior, err := scanAppointment(tx.QueryRowContext(ctx,
			"SELECT "+appointmentColumns+" FROM appointments WHERE client_id = ? AND master_id = ?",
			o.ClientID, o.MasterID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("load pair appointment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM appointments WHERE id = ?", prior.ID); err != nil {
			return fmt.Errorf("delete pair appointment: %w", err)
		}
		removed = prior
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (db *DB) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", id)
	}
	return o, err
}

func (db *DB) GetActiveOrderForPair(ctx context.Context, clientID, masterID int64) (*model.Order, error) {
	o, err := scanOrder(db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE client_id = ? AND master_id = ? AND status != ?",
		clientID, masterID, model.OrderClosed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", 0)
	}
	return o, err
}

// TransitionOrder moves an order to status `to` if its current status is one of from.
func (db *DB) TransitionOrder(
	ctx context.Context,
	id int64,
	action string,
	from []model.OrderStatus,
	to model.OrderStatus,
	complied bool,
) (*model.Order, error) {
	var out *model.Order
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !statusIn(o.Status, from) {
			return domain.InvalidTransition("order", id, string(o.Status), action)
		}
		o.Status, o.Complied, o.UpdatedAt = to, complied, time.Now()
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = ?, complied = ?, updated_at = ? WHERE id = ?",
			o.Status, o.Complied, o.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// CloseOrder closes a waiting order with a grade and credits the master's rating
// in the same transaction.
func (db *DB) CloseOrder(ctx context.Context, id int64, grade, ratingDelta int) (*model.Order, error) {
	var out *model.Order
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status != model.OrderWait {
			return domain.InvalidTransition("order", id, string(o.Status), "close")
		}
		o.Status, o.Grade, o.UpdatedAt = model.OrderClosed, grade, time.Now()
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = ?, grade = ?, updated_at = ? WHERE id = ?",
			o.Status, o.Grade, o.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("close order: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET rating = rating + ?, updated_at = ? WHERE telegram_id = ?",
			ratingDelta, o.UpdatedAt, o.MasterID,
		); err != nil {
			return fmt.Errorf("credit master rating: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// TransferOrder reassigns a non-closed order to another master.
func (db *DB) TransferOrder(ctx context.Context, id, masterID int64, masterName, masterContact string) (*model.Order, error) {
	var out *model.Order
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !o.IsActive() {
			return domain.InvalidTransition("order", id, string(o.Status), "transfer")
		}
		o.MasterID, o.MasterName, o.MasterContact, o.UpdatedAt = masterID, masterName, masterContact, time.Now()
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET master_id = ?, master_name = ?, master_contact = ?, updated_at = ? WHERE id = ?",
			o.MasterID, o.MasterName, o.MasterContact, o.UpdatedAt, id,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ConflictError{Resource: "order", Msg: "client already has an active order with this master"}
			}
			return fmt.Errorf("transfer order: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// DeleteOrder removes a non-closed order and returns the deleted record.
func (db *DB) DeleteOrder(ctx context.Context, id int64) (*model.Order, error) {
	var out *model.Order
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if !o.IsActive() {
			return domain.InvalidTransition("order", id, string(o.Status), "delete")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

func (db *DB) UpdateOrderDescription(ctx context.Context, id int64, description string) error {
	return db.updateOrderField(ctx, id, "description", description)
}

func (db *DB) UpdateOrderMileage(ctx context.Context, id int64, mileage int) error {
	return db.updateOrderField(ctx, id, "car_mileage", mileage)
}

func (db *DB) updateOrderField(ctx context.Context, id int64, column string, value any) error {
	res, err := db.ExecContext(ctx,
		fmt.Sprintf("UPDATE orders SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update order %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("order", id)
	}
	return nil
}

// ListOrders returns orders matching f, newest first.
func (db *DB) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	var where []string
	var args []any
	if f.ClientID != 0 {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.MasterID != 0 {
		where = append(where, "master_id = ?")
		args = append(args, f.MasterID)
	}
	if f.ActiveOnly {
		where = append(where, "status != ?")
		args = append(args, model.OrderClosed)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func lockOrder(ctx context.Context, tx *sql.Tx, id int64) (*model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("order", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func statusIn(s model.OrderStatus, set []model.OrderStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.ClientID, &o.MasterID, &o.Status, &o.Complied, &o.Description,
		&o.ClientName, &o.ClientContact, &o.MasterName, &o.MasterContact,
		&o.Vehicle.Brand, &o.Vehicle.Model, &o.Vehicle.Year, &o.Vehicle.Plate, &o.Vehicle.VIN, &o.Vehicle.Mileage,
		&o.Grade, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
