package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the workshop bot.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens database at path and runs migrations.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout и IMMEDIATE-транзакции: запись сериализуется на уровне БД
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id INTEGER PRIMARY KEY,
			user_name TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			contact TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			rating INTEGER NOT NULL DEFAULT 0,
			can_messages BOOLEAN NOT NULL DEFAULT 1,
			car_brand TEXT NOT NULL DEFAULT '',
			car_model TEXT NOT NULL DEFAULT '',
			car_year INTEGER NOT NULL DEFAULT 0,
			car_plate TEXT NOT NULL DEFAULT '',
			car_vin TEXT NOT NULL DEFAULT '',
			car_mileage INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			master_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT,
			end_time TEXT,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id INTEGER NOT NULL,
			master_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_work',
			complied BOOLEAN NOT NULL DEFAULT 0,
			description TEXT NOT NULL,
			client_name TEXT NOT NULL DEFAULT '',
			client_contact TEXT NOT NULL DEFAULT '',
			master_name TEXT NOT NULL DEFAULT '',
			master_contact TEXT NOT NULL DEFAULT '',
			car_brand TEXT NOT NULL DEFAULT '',
			car_model TEXT NOT NULL DEFAULT '',
			car_year INTEGER NOT NULL DEFAULT 0,
			car_plate TEXT NOT NULL DEFAULT '',
			car_vin TEXT NOT NULL DEFAULT '',
			car_mileage INTEGER NOT NULL DEFAULT 0,
			grade INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS diagnostics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_type TEXT NOT NULL,
			code TEXT NOT NULL,
			definition TEXT NOT NULL,
			causes TEXT NOT NULL DEFAULT '[]',
			order_id INTEGER,
			author_id INTEGER NOT NULL,
			brand TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author_id INTEGER NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			visible BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`,

		// Indexes
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_pair ON appointments(client_id, master_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_master_date ON appointments(master_id, date)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_active_pair ON orders(client_id, master_id) WHERE status != 'close'`,
		`CREATE INDEX IF NOT EXISTS idx_orders_master_status ON orders(master_id, status)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_diagnostics_api_code ON diagnostics(code) WHERE entry_type = 'api'`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_type ON diagnostics(entry_type, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// withTx runs fn inside a transaction. The DSN makes every transaction IMMEDIATE,
// so reads inside fn see a state no other writer can change before commit.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}
