package prefs

import (
	"testing"

	apperrors "github.com/gmsas95/dosewise/internal/errors"
	"github.com/gmsas95/dosewise/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPrefs(t *testing.T) *Store {
	kv, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return NewStore(kv)
}

func TestGetDefaults(t *testing.T) {
	s := setupPrefs(t)

	p, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), p)
}

func TestPutGet(t *testing.T) {
	s := setupPrefs(t)

	want := Preferences{Use24Hour: false, ShowCompleted: false, StreakLookbackDays: 30, ReminderLeadMinutes: 10}
	require.NoError(t, s.Put("alice", want))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	other, err := s.Get("bob")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), other)
}

func TestPutValidates(t *testing.T) {
	s := setupPrefs(t)

	tests := []struct {
		name string
		p    Preferences
	}{
		{"zero lookback", Preferences{StreakLookbackDays: 0}},
		{"huge lookback", Preferences{StreakLookbackDays: 1000}},
		{"negative lead", Preferences{StreakLookbackDays: 90, ReminderLeadMinutes: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put("alice", tt.p)
			assert.ErrorIs(t, err, apperrors.ErrPreferenceInvalid)
		})
	}
}
