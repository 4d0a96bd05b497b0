package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Set("prefs:alice", []byte(`{"use_24_hour":true}`)))

	val, err := s.Get("prefs:alice")
	require.NoError(t, err)
	assert.Equal(t, `{"use_24_hour":true}`, string(val))

	require.NoError(t, s.Delete("prefs:alice"))
	_, err = s.Get("prefs:alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetIfAbsent(t *testing.T) {
	s := setupTestStore(t)

	ok, err := s.SetIfAbsent("reminder:alice:2024-03-11:08:00:due", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetIfAbsent("reminder:alice:2024-03-11:08:00:due", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Keys(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Set("prefs:alice", []byte("{}")))
	require.NoError(t, s.Set("prefs:bob", []byte("{}")))
	require.NoError(t, s.SetWithTTL("reminder:bob", []byte("1"), time.Hour))

	keys, err := s.Keys("prefs:")
	require.NoError(t, err)
	assert.Equal(t, []string{"prefs:alice", "prefs:bob"}, keys)
}
