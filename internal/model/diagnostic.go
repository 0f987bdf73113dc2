package model

import "time"

type EntryType string

const (
	EntryAPISourced EntryType = "api"
	EntryManualDTC  EntryType = "manual_dtc"
)

// DiagnosticRecord is a decoded trouble code, either looked up or typed in by a master.
type DiagnosticRecord struct {
	ID         int64     `json:"id"`
	EntryType  EntryType `json:"entry_type"`
	Code       string    `json:"code"`
	Definition string    `json:"definition"`
	Causes     []string  `json:"causes"`
	OrderID    int64     `json:"order_id,omitempty"`
	AuthorID   int64     `json:"author_id"`
	Brand      string    `json:"brand,omitempty"`
	Model      string    `json:"model,omitempty"`
	Year       int       `json:"year,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
