package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AnomalyMultipleLogins = "multiple_logins"
	AnomalyFrequentLogin  = "frequent_login"
	AnomalyInactive       = "inactive"

	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly is derived on demand and never stored.
type Anomaly struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Severity    string                 `json:"severity"`
	UserID      uuid.UUID              `json:"user_id"`
	UserEmail   string                 `json:"user_email,omitempty"`
	UserName    string                 `json:"user_name,omitempty"`
	Description string                 `json:"description"`
	DetectedAt  time.Time              `json:"detected_at"`
	Details     map[string]interface{} `json:"details"`
}
