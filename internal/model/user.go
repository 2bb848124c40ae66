package model

import "time"

type Role string

const (
	// RoleAdmin may upload attendance sheets.
	RoleAdmin Role = "admin"
	// RoleViewer may sign in and see the dashboard only.
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleViewer
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type AdminUser struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        Role       `json:"role"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}
