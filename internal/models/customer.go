package models

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID           uuid.UUID  `json:"id"`
	DisplayName  *string    `json:"display_name"`
	Phone        *string    `json:"phone"`
	ContactKey   *string    `json:"contact_key"`
	Source       *string    `json:"source"`
	Grade        *string    `json:"grade"`
	EnglishLevel *string    `json:"english_level"`
	Tags         []string   `json:"tags"`
	Confidence   *string    `json:"confidence"`
	Notes        *string    `json:"notes"`
	LastSeenAt   *time.Time `json:"last_seen_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CustomerInput struct {
	DisplayName  *string    `json:"display_name"`
	Phone        *string    `json:"phone"`
	ContactKey   *string    `json:"contact_key"`
	Source       *string    `json:"source"`
	Grade        *string    `json:"grade"`
	EnglishLevel *string    `json:"english_level"`
	Tags         []string   `json:"tags"`
	Confidence   *string    `json:"confidence"`
	Notes        *string    `json:"notes"`
	LastSeenAt   *time.Time `json:"last_seen_at"`
}
