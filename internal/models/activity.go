package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ActivityLogin    = "login"
	ActivityLogout   = "logout"
	ActivityPageView = "page_view"
	ActivityAction   = "action"
)

func ValidActivityType(t string) bool {
	switch t {
	case ActivityLogin, ActivityLogout, ActivityPageView, ActivityAction:
		return true
	}
	return false
}

type ActivityLogEntry struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	ActivityType string          `json:"activity_type"`
	PagePath     *string         `json:"page_path"`
	Action       *string         `json:"action"`
	Metadata     json.RawMessage `json:"metadata"`
	IPAddress    string          `json:"ip_address"`
	UserAgent    string          `json:"user_agent"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ActivityView is a log entry joined with its actor's profile.
type ActivityView struct {
	ActivityLogEntry
	UserEmail *string `json:"user_email"`
	UserName  *string `json:"user_name"`
	UserRole  *string `json:"user_role"`
}

type LoginSession struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	LoginAt   time.Time  `json:"login_at"`
	LogoutAt  *time.Time `json:"logout_at"`
	IPAddress string     `json:"ip_address"`
	UserAgent string     `json:"user_agent"`
	IsActive  bool       `json:"is_active"`
}

type RecordActivityRequest struct {
	ActivityType string          `json:"activity_type"`
	PagePath     *string         `json:"page_path"`
	Action       *string         `json:"action"`
	Metadata     json.RawMessage `json:"metadata"`
	UserAgent    *string         `json:"user_agent"`
}

type ActivityFilter struct {
	UserID       *uuid.UUID
	ActivityType string
	PagePath     string
	Start        *time.Time
	End          *time.Time
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}
