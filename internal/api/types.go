package api

import (
	"time"

	"github.com/gmsas95/dosewise/internal/health"
)

type loginRequest struct {
	Password string `json:"password"`
	UserID   string `json:"user_id"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type medicationRequest struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
}

type scheduleRequest struct {
	TimeToTake string           `json:"time_to_take"`
	DaysOfWeek []health.Weekday `json:"days_of_week"`
}

type markRequest struct {
	Notes string `json:"notes"`
}

type logRequest struct {
	ScheduleID string           `json:"schedule_id"`
	Status     health.LogStatus `json:"status"`
	TakenAt    *time.Time       `json:"taken_at"`
	Notes      string           `json:"notes"`
}

type streakResponse struct {
	Streak       int `json:"streak"`
	LookbackDays int `json:"lookback_days"`
}
