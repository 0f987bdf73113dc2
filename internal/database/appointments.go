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
	"carservice/internal/slots"
)

const appointmentColumns = `id, client_id, master_id, date, start_time, end_time, reminder_sent, created_at`

// BookAppointment stores an appointment after re-checking the master's day inside one
// immediate transaction. A prior appointment of the same client-master pair is
// replaced and returned.
func (db *DB) BookAppointment(ctx context.Context, a *model.Appointment) (*model.Appointment, error) {
	if !a.HasWindow() {
		return nil, domain.Validation("time", "appointment needs start and end")
	}
	var replaced *model.Appointment
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := scanAppointment(tx.QueryRowContext(ctx,
			"SELECT "+appointmentColumns+" FROM appointments WHERE client_id = ? AND master_id = ?",
			a.ClientID, a.MasterID,
		))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("load pair appointment: %w", err)
		default:
			if _, err := tx.ExecContext(ctx, "DELETE FROM appointments WHERE id = ?", prior.ID); err != nil {
				return fmt.Errorf("delete pair appointment: %w", err)
			}
			replaced = prior
		}

		existing, err := queryAppointments(ctx, tx,
			"SELECT "+appointmentColumns+" FROM appointments WHERE master_id = ? AND date = ?",
			a.MasterID, a.Date.Format(model.DateLayout),
		)
		if err != nil {
			return fmt.Errorf("load master day: %w", err)
		}
		if !slots.IntervalFree(a.Date, a.Start, a.End, existing) {
			return domain.ConflictError{Resource: "appointment", Msg: "slot is no longer free"}
		}

		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now()
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (client_id, master_id, date, start_time, end_time, reminder_sent, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)`,
			a.ClientID, a.MasterID, a.Date.Format(model.DateLayout), a.Start.String(), a.End.String(), a.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ConflictError{Resource: "appointment", Msg: "pair already booked"}
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		a.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("appointment", id)
	}
	return a, err
}

// GetPairAppointment returns the single appointment of a client with a master.
func (db *DB) GetPairAppointment(ctx context.Context, clientID, masterID int64) (*model.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE client_id = ? AND master_id = ?",
		clientID, masterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("appointment", 0)
	}
	return a, err
}

// ListAppointmentsForDate returns the master's appointments on one date.
func (db *DB) ListAppointmentsForDate(ctx context.Context, masterID int64, date time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, db,
		"SELECT "+appointmentColumns+" FROM appointments WHERE master_id = ? AND date = ? ORDER BY start_time",
		masterID, date.Format(model.DateLayout))
}

// ListAppointmentsInRange returns the master's appointments between two dates inclusive.
func (db *DB) ListAppointmentsInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Appointment, error) {
	return db.ListAppointments(ctx, model.AppointmentFilter{MasterID: masterID, From: from, To: to})
}

// ListAppointments returns appointments ordered by date then start time.
func (db *DB) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, error) {
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
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.Format(model.DateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.Format(model.DateLayout))
	}
	q := "SELECT " + appointmentColumns + " FROM appointments"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date, start_time"
	return queryAppointments(ctx, db, q, args...)
}

func (db *DB) DeleteAppointment(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM appointments WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("appointment", id)
	}
	return nil
}

// ListUnremindedAppointments returns appointments dated within [from, to] that have
// not been reminded yet.
func (db *DB) ListUnremindedAppointments(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return queryAppointments(ctx, db,
		"SELECT "+appointmentColumns+" FROM appointments WHERE reminder_sent = 0 AND date >= ? AND date <= ? ORDER BY date, start_time",
		from.Format(model.DateLayout), to.Format(model.DateLayout))
}

func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, "UPDATE appointments SET reminder_sent = 1 WHERE id = ?", id)
	return err
}

// DeleteAppointmentsBefore purges appointments dated strictly before date.
func (db *DB) DeleteAppointmentsBefore(ctx context.Context, date time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM appointments WHERE date < ?", date.Format(model.DateLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAppointments(ctx context.Context, q querier, query string, args ...any) ([]model.Appointment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var a model.Appointment
	var date string
	var start, end sql.NullString
	if err := row.Scan(&a.ID, &a.ClientID, &a.MasterID, &date, &start, &end, &a.ReminderSent, &a.CreatedAt); err != nil {
		return nil, err
	}
	d, err := time.ParseInLocation(model.DateLayout, date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse appointment %d date: %w", a.ID, err)
	}
	a.Date = d
	// Битые значения времени оставляем пустыми: калькулятор их пропускает
	a.Start, a.End = model.NoClock, model.NoClock
	if start.Valid {
		if c, err := model.ParseClock(start.String); err == nil {
			a.Start = c
		}
	}
	if end.Valid {
		if c, err := model.ParseClock(end.String); err == nil {
			a.End = c
		}
	}
	return &a, nil
}
