package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)

	// GetTableData returns rows for a table as maps plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// DataCleaner purges records past the retention window.
type DataCleaner interface {
	CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	SaveToFile(path string) error
	Close() error
}

// Notifier delivers the report to the administrator.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

var monthNames = map[time.Month]string{
	time.January:   "Январь",
	time.February:  "Февраль",
	time.March:     "Март",
	time.April:     "Апрель",
	time.May:       "Май",
	time.June:      "Июнь",
	time.July:      "Июль",
	time.August:    "Август",
	time.September: "Сентябрь",
	time.October:   "Октябрь",
	time.November:  "Ноябрь",
	time.December:  "Декабрь",
}

// ReportFilename names the report covering the month before now, e.g. "Автосервис_Февраль_2026.xlsx".
func ReportFilename(prefix string, now time.Time) string {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	name := fmt.Sprintf("%s_%d.xlsx", monthNames[prev.Month()], prev.Year())
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}
