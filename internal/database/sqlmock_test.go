package database

import (
	"context"
	"errors"
	"io"
	"testing"

	"carservice/internal/domain"
	"carservice/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	logger := zerolog.New(io.Discard)
	return &DB{DB: sqlDB, logger: &logger}, mock
}

func TestBookAppointmentRollsBackOnInsertFailure(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE client_id = \\? AND master_id = \\?").
		WithArgs(int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT .+ FROM appointments WHERE master_id = \\? AND date = \\?").
		WithArgs(int64(10), "2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "master_id", "date", "start_time", "end_time", "reminder_sent", "created_at"}))
	mock.ExpectExec("INSERT INTO appointments").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := db.BookAppointment(context.Background(), &model.Appointment{
		ClientID: 1, MasterID: 10, Date: day(10), Start: hm(9, 0), End: hm(10, 0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert appointment")
	assert.False(t, domain.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id = \\?").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetOrder(context.Background(), 42)
	assert.True(t, domain.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseOrderCommitFailure(t *testing.T) {
	db, mock := newMockDB(t)

	cols := []string{"id", "client_id", "master_id", "status", "complied", "description",
		"client_name", "client_contact", "master_name", "master_contact",
		"car_brand", "car_model", "car_year", "car_plate", "car_vin", "car_mileage",
		"grade", "created_at", "updated_at"}
	now := day(10)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id = \\?").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			7, 1, 10, "wait", true, "Ремонт", "", "", "", "", "", "", 0, "", "", 0, 0, now, now))
	mock.ExpectExec("UPDATE orders SET status = \\?, grade = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET rating = rating \\+ \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, err := db.CloseOrder(context.Background(), 7, 5, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}
