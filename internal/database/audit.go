package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditTableNames are exported in monthly audit reports.
var AuditTableNames = []string{
	"users",
	"appointments",
	"orders",
	"diagnostics",
	"reviews",
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(ctx context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from a table as maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) (data []map[string]interface{}, columns []string, err error) {
	// Validate table name to prevent SQL injection
	validTable := false
	for _, t := range AuditTableNames {
		if t == tableName {
			validTable = true
			break
		}
	}
	if !validTable {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	var rows *sql.Rows
	rows, err = db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	if columns, err = rows.Columns(); err != nil {
		return nil, nil, err
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err = rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		data = append(data, row)
	}

	return data, columns, rows.Err()
}

// CleanupOldRecords purges appointments dated before the cutoff.
// Orders and diagnostics are kept as the workshop's history.
func (db *DB) CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	n, err := db.DeleteAppointmentsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge appointments: %w", err)
	}
	return n, nil
}
