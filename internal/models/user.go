package models

import (
	"strings"
	"time"
)

// UserRole is the closed set of caller roles. Compare values, never raw strings.
type UserRole string

const (
	RoleNormal    UserRole = "NORMAL"
	RoleInspector UserRole = "INSPECTOR"
	RoleJudge     UserRole = "JUDGE"
	RoleAdmin     UserRole = "ADMIN"
)

// Valid reports whether the role belongs to the known set.
func (r UserRole) Valid() bool {
	switch r {
	case RoleNormal, RoleInspector, RoleJudge, RoleAdmin:
		return true
	}
	return false
}

// ParseUserRole normalises loose input such as "juez" or "admin".
func ParseUserRole(raw string) (UserRole, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NORMAL":
		return RoleNormal, true
	case "INSPECTOR":
		return RoleInspector, true
	case "JUDGE", "JUEZ":
		return RoleJudge, true
	case "ADMIN":
		return RoleAdmin, true
	}
	return "", false
}

// User is an account able to call the API.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	DNI          string     `db:"dni" json:"dni"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
