// Package prefs stores per-user display preferences.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/store"
	"github.com/go-playground/validator/v10"
)

// Preferences are presentation settings. The engine never reads them;
// callers pass the relevant values in explicitly.
type Preferences struct {
	Use24Hour           bool `json:"use_24_hour"`
	ShowCompleted       bool `json:"show_completed"`
	StreakLookbackDays  int  `json:"streak_lookback_days" validate:"min=1,max=365"`
	ReminderLeadMinutes int  `json:"reminder_lead_minutes" validate:"min=0,max=120"`
}

func Defaults() Preferences {
	return Preferences{
		Use24Hour:           true,
		ShowCompleted:       true,
		StreakLookbackDays:  90,
		ReminderLeadMinutes: 0,
	}
}

// KV is the subset of store.Store used here.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

type Store struct {
	kv       KV
	validate *validator.Validate
}

func NewStore(kv KV) *Store {
	return &Store{kv: kv, validate: validator.New()}
}

func key(userID string) string {
	return "prefs:" + userID
}

// Get returns the saved preferences, or the defaults if none were saved.
func (s *Store) Get(userID string) (Preferences, error) {
	raw, err := s.kv.Get(key(userID))
	if errors.Is(err, store.ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("get preferences: %w", err)
	}

	p := Defaults()
	if err := json.Unmarshal(raw, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return p, nil
}

func (s *Store) Put(userID string, p Preferences) error {
	if err := s.validate.Struct(p); err != nil {
		return apperrors.WithCause(apperrors.ErrPreferenceInvalid, err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.kv.Set(key(userID), raw)
}

// ReminderLead returns the user's reminder lead time, zero when unknown.
func (s *Store) ReminderLead(userID string) int {
	p, err := s.Get(userID)
	if err != nil {
		return 0
	}
	return p.ReminderLeadMinutes
}
