package model

import (
	"strconv"
	"time"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleMaster  Role = "master"
	RoleAdmin   Role = "admin"
	RoleBlocked Role = "blocked"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleMaster, RoleAdmin, RoleBlocked:
		return true
	}
	return false
}

// Vehicle is the car profile of a client. Orders carry a copy of it.
type Vehicle struct {
	Brand   string `json:"brand"`
	Model   string `json:"model"`
	Year    int    `json:"year"`
	Plate   string `json:"plate"`
	VIN     string `json:"vin"`
	Mileage int    `json:"mileage"`
}

type User struct {
	TelegramID  int64     `json:"telegram_id"`
	UserName    string    `json:"user_name"`
	Name        string    `json:"name"`
	Contact     string    `json:"contact"`
	Role        Role      `json:"role"`
	Rating      int       `json:"rating"`
	CanMessages bool      `json:"can_messages"`
	Vehicle     Vehicle   `json:"vehicle"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileComplete reports whether the user can take part in bookings and orders.
func (u *User) ProfileComplete() bool {
	return u != nil && u.Name != "" && u.Contact != ""
}

func (u *User) IsMaster() bool { return u.Role == RoleMaster || u.Role == RoleAdmin }

// DisplayName falls back to @username and then to the numeric id.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.UserName != "":
		return "@" + u.UserName
	}
	return "id" + strconv.FormatInt(u.TelegramID, 10)
}

// Review is a client's free-text feedback about the workshop.
type Review struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`
}
