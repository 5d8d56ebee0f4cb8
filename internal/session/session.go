// Package session provides the server-side HTTP session: an injected
// key/value store per session id, a cookie-bound manager middleware, and
// the contractual keys used by the login flows.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Contractual session keys read and written by the auth flows.
const (
	KeyAuthState   = "auth_state"
	KeyAuthResult  = "auth_result"
	KeyCharacterID = "character_id"
	KeyCSRFToken   = "csrf_token"
)

// ErrNoSession is returned when a handler requires a session and the
// request carries none.
var ErrNoSession = errors.New("session: not started")

// Backend persists serialized sessions by session id.
type Backend interface {
	Get(sid string) ([]byte, bool)
	Set(sid string, data []byte, ttl time.Duration)
	Delete(sid string)
}

// Session is one browser session. Values are JSON-serializable; mutations
// are buffered until Save.
type Session struct {
	id      string
	values  map[string]json.RawMessage
	dirty   bool
	destroy bool
}

// New creates an empty session with the given id.
func New(id string) *Session {
	return &Session{id: id, values: make(map[string]json.RawMessage)}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Get unmarshals the value under key into out. The second return is false
// when the key is absent.
func (s *Session) Get(key string, out any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

// GetString returns the string under key, or "" when absent.
func (s *Session) GetString(key string) string {
	var v string
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

// GetInt64 returns the int64 under key; ok is false when absent.
func (s *Session) GetInt64(key string) (int64, bool) {
	var v int64
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return 0, false
	}
	return v, true
}

// Set stores a JSON-serializable value under key.
func (s *Session) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = raw
	s.dirty = true
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Destroy marks the whole session for removal on Save.
func (s *Session) Destroy() {
	s.values = make(map[string]json.RawMessage)
	s.destroy = true
	s.dirty = true
}

func (s *Session) destroyed() bool { return s.destroy }

func (s *Session) encode() ([]byte, error) {
	return json.Marshal(s.values)
}

func decode(id string, data []byte) (*Session, error) {
	s := New(id)
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

type ctxKey struct{}

// ToContext injects a session into the request context.
func ToContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session, or nil when none was started.
func FromContext(ctx context.Context) *Session {
	if v := ctx.Value(ctxKey{}); v != nil {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	return nil
}
