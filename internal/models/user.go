package models

import "time"

// UserRole represents the available roles for the portal.
type UserRole string

const (
	RolePatient UserRole = "PATIENT"
	RoleDoctor  UserRole = "DOCTOR"
	RoleAdmin   UserRole = "ADMIN"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor is the identity the lifecycle engine authorizes against. It is
// rebuilt from the users table on every request so role changes take effect
// immediately, never read from ambient session state.
type Actor struct {
	ID          string   `json:"id"`
	Role        UserRole `json:"role"`
	DisplayName string   `json:"display_name"`
}

// IsClinician reports whether the actor may work the reviewer side of a scan
// request.
func (a Actor) IsClinician() bool {
	return a.Role == RoleDoctor || a.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
