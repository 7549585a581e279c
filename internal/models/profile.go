package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin       = "admin"
	RoleSalesperson = "salesperson"
)

type UserProfile struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           *string    `json:"name"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DisplayName falls back to the email when no name is set.
func (p *UserProfile) DisplayName() string {
	if p.Name != nil && *p.Name != "" {
		return *p.Name
	}
	return p.Email
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleSalesperson
}

// Caller is the authenticated identity resolved once per request.
type Caller struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  string    `json:"role"`
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

type UserFilter struct {
	Role     string
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

type CreateUserRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
	Role     string  `json:"role"`
	IsActive *bool   `json:"is_active"`
}

type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}
