package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	// RetentionDays is how long appointments are kept. Default: 180.
	RetentionDays int

	// ExportOnStart runs one export as soon as Start is called.
	ExportOnStart bool

	// ReportName prefixes the report filename and caption.
	ReportName string
}

// Service exports all tables on the 1st of every month and purges old records.
type Service struct {
	config   Config
	exporter TableExporter
	writer   func() ExcelWriter
	notifier Notifier
	cleaner  DataCleaner
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(
	cfg Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	notifier Notifier,
	cleaner DataCleaner,
	logger *zerolog.Logger,
) *Service {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 180
	}
	return &Service{
		config:   cfg,
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		cleaner:  cleaner,
		logger:   logger.With().Str("component", "audit").Logger(),
		now:      time.Now,
	}
}

// Start blocks until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Int("retention_days", s.config.RetentionDays).Msg("Audit service started")
	if s.config.ExportOnStart {
		s.RunExportAndCleanup(ctx)
	}

	next := nextFirstOfMonth(s.now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	s.logger.Info().Time("next_run", next).Msg("Next audit scheduled")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Audit service stopped")
			return
		case <-timer.C:
			s.RunExportAndCleanup(ctx)
			next = nextFirstOfMonth(s.now())
			timer.Reset(time.Until(next))
			s.logger.Info().Time("next_run", next).Msg("Next audit scheduled")
		}
	}
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup exports first and purges afterwards, so purged rows still reach the report.
func (s *Service) RunExportAndCleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if err := s.ExportNow(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to export audit data")
	}
	if _, err := s.CleanupNow(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cleanup old data")
	}
}

// ExportNow builds the workbook and sends it through the notifier.
func (s *Service) ExportNow(ctx context.Context) error {
	if s.exporter == nil || s.writer == nil {
		return fmt.Errorf("exporter or writer not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.logger.Info().Msg("No tables to export")
		return nil
	}

	excel := s.writer()
	defer excel.Close()

	for _, table := range tables {
		if err := s.exportTable(ctx, excel, table); err != nil {
			s.logger.Error().Err(err).Str("table", table).Msg("Failed to export table")
		}
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	if s.notifier == nil {
		return nil
	}

	filename := ReportFilename(s.config.ReportName, s.now())
	caption := "📊 Ежемесячный отчёт"
	if s.config.ReportName != "" {
		caption += " " + s.config.ReportName
	}
	if err := s.notifier.SendDocument(ctx, filename, &buf, caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	s.logger.Info().Str("filename", filename).Msg("Audit report sent")
	return nil
}

func (s *Service) exportTable(ctx context.Context, excel ExcelWriter, table string) error {
	data, columns, err := s.exporter.GetTableData(ctx, table)
	if err != nil {
		return fmt.Errorf("get table data: %w", err)
	}
	if err := excel.AddSheet(table); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return err
	}
	for _, row := range data {
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		if err := excel.WriteRow(values); err != nil {
			return err
		}
	}
	s.logger.Debug().Str("table", table).Int("rows", len(data)).Msg("Exported table")
	return nil
}

// CleanupNow purges records older than the retention window.
func (s *Service) CleanupNow(ctx context.Context) (int64, error) {
	if s.cleaner == nil {
		return 0, nil
	}
	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.CleanupOldRecords(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("cleanup old records: %w", err)
	}
	s.logger.Info().Int64("deleted", deleted).Int("retention_days", s.config.RetentionDays).Msg("Cleaned up old data")
	return deleted, nil
}
