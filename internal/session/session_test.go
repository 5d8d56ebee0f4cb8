package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionValues(t *testing.T) {
	s := New("sid")
	assert.Equal(t, "sid", s.ID())

	require.NoError(t, s.Set(KeyAuthState, "core.default*abc"))
	require.NoError(t, s.Set(KeyCharacterID, int64(100)))

	assert.Equal(t, "core.default*abc", s.GetString(KeyAuthState))
	id, ok := s.GetInt64(KeyCharacterID)
	require.True(t, ok)
	assert.Equal(t, int64(100), id)

	_, ok = s.GetInt64("absent")
	assert.False(t, ok)
	assert.Empty(t, s.GetString("absent"))
}

func TestSessionStructValues(t *testing.T) {
	type result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	s := New("sid")
	require.NoError(t, s.Set(KeyAuthResult, result{Success: true, Message: "ok"}))

	var out result
	ok, err := s.Get(KeyAuthResult, &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result{Success: true, Message: "ok"}, out)
}

func TestSessionDelete(t *testing.T) {
	s := New("sid")
	require.NoError(t, s.Set("k", "v"))
	s.Delete("k")
	assert.Empty(t, s.GetString("k"))
	s.Delete("k") // absent key is a no-op
}

func TestSessionRoundTrip(t *testing.T) {
	s := New("sid")
	require.NoError(t, s.Set(KeyCSRFToken, "tok"))
	data, err := s.encode()
	require.NoError(t, err)

	restored, err := decode("sid", data)
	require.NoError(t, err)
	assert.Equal(t, "tok", restored.GetString(KeyCSRFToken))
}

func TestDecodeEmpty(t *testing.T) {
	s, err := decode("sid", nil)
	require.NoError(t, err)
	assert.Empty(t, s.GetString("anything"))

	_, err = decode("sid", []byte("not json"))
	assert.Error(t, err)
}

func TestDestroyClearsValues(t *testing.T) {
	s := New("sid")
	require.NoError(t, s.Set("k", "v"))
	s.Destroy()
	assert.Empty(t, s.GetString("k"))
	assert.True(t, s.destroyed())
}
