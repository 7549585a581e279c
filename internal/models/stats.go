package models

import (
	"time"

	"github.com/google/uuid"
)

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type UserCount struct {
	UserID uuid.UUID `json:"user_id"`
	Count  int       `json:"count"`
	Email  string    `json:"email,omitempty"`
	Name   string    `json:"name,omitempty"`
}

type PageCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

type ActivityStats struct {
	TotalActivities  int            `json:"totalActivities"`
	TodayLogins      int            `json:"todayLogins"`
	ActiveUsers      int            `json:"activeUsers"`
	LoginTrend       []DateCount    `json:"loginTrend"`
	TopUsers         []UserCount    `json:"topUsers"`
	TopPages         []PageCount    `json:"topPages"`
	TypeDistribution map[string]int `json:"typeDistribution"`
	RecentActivities []ActivityView `json:"recentActivities"`
	Start            time.Time      `json:"start_date"`
	End              time.Time      `json:"end_date"`
}

type TimelinePoint struct {
	Date    string `json:"date"`
	Logins  int    `json:"logins"`
	Actions int    `json:"actions"`
}

type UserUsage struct {
	UserID         uuid.UUID       `json:"user_id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	LoginCount     int             `json:"login_count"`
	ActionCount    int             `json:"action_count"`
	LastLoginAt    *time.Time      `json:"last_login_at"`
	LastActivityAt *time.Time      `json:"last_activity_at"`
	Timeline       []TimelinePoint `json:"timeline"`
}
