package diagnostics

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"carservice/internal/domain"
	"carservice/internal/model"

	"github.com/rs/zerolog"
)

const EventRecorded = "diagnostic.recorded"

var codePattern = regexp.MustCompile(`^[PBCU][0-9A-FX]{4}$`)

// NormalizeCode trims and upper-cases a trouble code and checks its format.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codePattern.MatchString(code) {
		return "", domain.Validation("code", "expected P/B/C/U followed by four characters, e.g. P0300")
	}
	return code, nil
}

// ManualEntry is a parsed "code:definition:cause1, cause2" line.
type ManualEntry struct {
	Code       string
	Definition string
	Causes     []string
}

func ParseManualEntry(text string) (*ManualEntry, error) {
	parts := strings.SplitN(strings.TrimSpace(text), ":", 3)
	if len(parts) != 3 {
		return nil, domain.Validation("entry", "expected code:definition:cause1, cause2")
	}
	code, err := NormalizeCode(parts[0])
	if err != nil {
		return nil, err
	}
	definition := strings.TrimSpace(parts[1])
	if definition == "" {
		return nil, domain.Validation("definition", "must not be empty")
	}
	var causes []string
	for _, c := range strings.Split(parts[2], ",") {
		if c = strings.TrimSpace(c); c != "" {
			causes = append(causes, c)
		}
	}
	if len(causes) == 0 {
		return nil, domain.Validation("causes", "at least one cause is required")
	}
	return &ManualEntry{Code: code, Definition: definition, Causes: causes}, nil
}

// ParseFilter maps the "high" (api) and "low" (manual) filter names to entry types.
func ParseFilter(name string) (model.EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "high", string(model.EntryAPISourced):
		return model.EntryAPISourced, nil
	case "low", "manual", string(model.EntryManualDTC):
		return model.EntryManualDTC, nil
	default:
		return "", domain.Validation("filter", "unknown filter "+name)
	}
}

type Store interface {
	InsertAPIDiagnosticIfAbsent(ctx context.Context, rec *model.DiagnosticRecord) (bool, error)
	InsertDiagnostic(ctx context.Context, rec *model.DiagnosticRecord) error
	ListDiagnostics(ctx context.Context, entryType model.EntryType, limit int) ([]model.DiagnosticRecord, error)
}

type OrderLookup interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Recorder stores decoded and hand-entered trouble codes.
type Recorder struct {
	store     Store
	orders    OrderLookup
	decoder   Decoder
	publisher EventPublisher
	logger    zerolog.Logger
}

func NewRecorder(store Store, orders OrderLookup, decoder Decoder, publisher EventPublisher, logger *zerolog.Logger) *Recorder {
	return &Recorder{
		store:     store,
		orders:    orders,
		decoder:   decoder,
		publisher: publisher,
		logger:    logger.With().Str("component", "diagnostics").Logger(),
	}
}

// RecordAPISourced inserts the record unless the code is already known.
func (r *Recorder) RecordAPISourced(ctx context.Context, authorID int64, code, definition string, causes []string) (bool, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return false, err
	}
	rec := &model.DiagnosticRecord{
		EntryType:  model.EntryAPISourced,
		Code:       code,
		Definition: definition,
		Causes:     causes,
		AuthorID:   authorID,
	}
	inserted, err := r.store.InsertAPIDiagnosticIfAbsent(ctx, rec)
	if err != nil {
		return false, err
	}
	if inserted {
		r.publish(rec)
	}
	return inserted, nil
}

// RecordManual stores a master's entry against one of their active orders.
// The order's vehicle is copied onto the record.
func (r *Recorder) RecordManual(ctx context.Context, authorID, orderID int64, entry ManualEntry) (*model.DiagnosticRecord, error) {
	code, err := NormalizeCode(entry.Code)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(entry.Definition) == "" {
		return nil, domain.Validation("definition", "must not be empty")
	}
	if orderID == 0 {
		return nil, domain.Validation("order", "manual entries must be linked to an order")
	}
	o, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MasterID != authorID {
		return nil, domain.Validation("order", "order belongs to another master")
	}
	if !o.IsActive() {
		return nil, domain.Validation("order", "order is closed")
	}

	rec := &model.DiagnosticRecord{
		EntryType:  model.EntryManualDTC,
		Code:       code,
		Definition: strings.TrimSpace(entry.Definition),
		Causes:     entry.Causes,
		OrderID:    o.ID,
		AuthorID:   authorID,
		Brand:      o.Vehicle.Brand,
		Model:      o.Vehicle.Model,
		Year:       o.Vehicle.Year,
	}
	if err := r.store.InsertDiagnostic(ctx, rec); err != nil {
		return nil, err
	}
	r.publish(rec)
	r.logger.Info().Str("code", code).Int64("order_id", o.ID).Int64("author_id", authorID).Msg("Manual DTC recorded")
	return rec, nil
}

// Lookup decodes a code through the configured decoder and records the result.
func (r *Recorder) Lookup(ctx context.Context, authorID int64, raw string) (*Decoded, bool, error) {
	code, err := NormalizeCode(raw)
	if err != nil {
		return nil, false, err
	}
	if r.decoder == nil {
		return nil, false, domain.NotFound("diagnostic code", 0)
	}
	d, err := r.decoder.Decode(ctx, code)
	if err != nil {
		return nil, false, err
	}
	inserted, err := r.RecordAPISourced(ctx, authorID, d.Code, d.Definition, d.Causes)
	if err != nil {
		return d, false, fmt.Errorf("record decoded code: %w", err)
	}
	return d, inserted, nil
}

func (r *Recorder) Filter(ctx context.Context, kind model.EntryType) ([]model.DiagnosticRecord, error) {
	return r.store.ListDiagnostics(ctx, kind, 0)
}

// HistoryAPISourced returns decoded codes oldest first.
func (r *Recorder) HistoryAPISourced(ctx context.Context) ([]model.DiagnosticRecord, error) {
	return r.store.ListDiagnostics(ctx, model.EntryAPISourced, 0)
}

func (r *Recorder) publish(rec *model.DiagnosticRecord) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishJSON(EventRecorded, rec); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to publish diagnostic event")
	}
}

// FormatDecoded renders a lookup result for chat.
func FormatDecoded(d *Decoded) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Код: %s\n📝 Описание: %s\n\n🔧 Возможные причины:\n", d.Code, d.Definition))
	if len(d.Causes) == 0 {
		sb.WriteString("Причины не указаны.")
	}
	for i, c := range d.Causes {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("• " + c)
	}
	return sb.String()
}

// FormatRecords renders a filtered list with a title line.
func FormatRecords(title string, records []model.DiagnosticRecord) string {
	if len(records) == 0 {
		return "📭 Нет записей: " + title
	}
	lines := []string{fmt.Sprintf("%s (всего: %d):", title, len(records))}
	for _, r := range records {
		lines = append(lines, fmt.Sprintf("• %s: %s", r.Code, r.Definition))
	}
	return strings.Join(lines, "\n")
}
