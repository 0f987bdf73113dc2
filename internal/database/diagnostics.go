package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carservice/internal/domain"
	"carservice/internal/model"
)

const diagnosticColumns = `id, entry_type, code, definition, causes, order_id, author_id, brand, model, year, created_at`

// InsertAPIDiagnosticIfAbsent stores an API-sourced record unless its code is already known.
// The partial unique index on code makes this atomic.
func (db *DB) InsertAPIDiagnosticIfAbsent(ctx context.Context, rec *model.DiagnosticRecord) (bool, error) {
	rec.EntryType = model.EntryAPISourced
	res, err := db.insertDiagnostic(ctx, "INSERT OR IGNORE", rec)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	rec.ID, err = res.LastInsertId()
	return true, err
}

// InsertDiagnostic stores a record unconditionally.
func (db *DB) InsertDiagnostic(ctx context.Context, rec *model.DiagnosticRecord) error {
	res, err := db.insertDiagnostic(ctx, "INSERT", rec)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError{Resource: "diagnostic", Msg: "code already recorded"}
		}
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (db *DB) insertDiagnostic(ctx context.Context, verb string, rec *model.DiagnosticRecord) (sql.Result, error) {
	causes, err := json.Marshal(nonNil(rec.Causes))
	if err != nil {
		return nil, fmt.Errorf("marshal causes: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	var orderID sql.NullInt64
	if rec.OrderID != 0 {
		orderID = sql.NullInt64{Int64: rec.OrderID, Valid: true}
	}
	res, err := db.ExecContext(ctx, verb+` INTO diagnostics
		(entry_type, code, definition, causes, order_id, author_id, brand, model, year, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EntryType, rec.Code, rec.Definition, string(causes), orderID, rec.AuthorID,
		rec.Brand, rec.Model, rec.Year, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert diagnostic: %w", err)
	}
	return res, nil
}

// GetAPIDiagnostic returns a previously decoded code.
func (db *DB) GetAPIDiagnostic(ctx context.Context, code string) (*model.DiagnosticRecord, error) {
	rec, err := scanDiagnostic(db.QueryRowContext(ctx,
		"SELECT "+diagnosticColumns+" FROM diagnostics WHERE entry_type = ? AND code = ?",
		model.EntryAPISourced, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("diagnostic", 0)
	}
	return rec, err
}

// ListDiagnostics returns records of one entry type in insertion order. limit <= 0 means all.
func (db *DB) ListDiagnostics(ctx context.Context, entryType model.EntryType, limit int) ([]model.DiagnosticRecord, error) {
	q := "SELECT " + diagnosticColumns + " FROM diagnostics WHERE entry_type = ? ORDER BY created_at, id"
	args := []any{entryType}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []model.DiagnosticRecord
	for rows.Next() {
		rec, err := scanDiagnostic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanDiagnostic(row rowScanner) (*model.DiagnosticRecord, error) {
	var rec model.DiagnosticRecord
	var causes string
	var orderID sql.NullInt64
	err := row.Scan(&rec.ID, &rec.EntryType, &rec.Code, &rec.Definition, &causes, &orderID,
		&rec.AuthorID, &rec.Brand, &rec.Model, &rec.Year, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if orderID.Valid {
		rec.OrderID = orderID.Int64
	}
	if err := json.Unmarshal([]byte(causes), &rec.Causes); err != nil {
		return nil, fmt.Errorf("decode causes of diagnostic %d: %w", rec.ID, err)
	}
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
