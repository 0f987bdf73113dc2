package model

import "time"

type OrderStatus string

const (
	OrderInWork OrderStatus = "in_work"
	OrderWait   OrderStatus = "wait"
	OrderClosed OrderStatus = "close"
)

// Order is a unit of work linking a client and a master.
type Order struct {
	ID            int64       `json:"id"`
	ClientID      int64       `json:"client_id"`
	MasterID      int64       `json:"master_id"`
	Status        OrderStatus `json:"status"`
	Complied      bool        `json:"complied"`
	Description   string      `json:"description"`
	Vehicle       Vehicle     `json:"vehicle"`
	ClientName    string      `json:"client_name"`
	ClientContact string      `json:"client_contact"`
	MasterName    string      `json:"master_name"`
	MasterContact string      `json:"master_contact"`
	Grade         int         `json:"grade,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsActive reports whether the order still occupies the client-master pair.
func (o *Order) IsActive() bool { return o.Status != OrderClosed }

// OrderFilter narrows order listings. Zero fields match everything.
type OrderFilter struct {
	ClientID   int64
	MasterID   int64
	ActiveOnly bool
	Status     OrderStatus
}
