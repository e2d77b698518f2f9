package session

import (
	"maps"
	"time"

	"github.com/cockroachdb/errors"
)

// Session is the server-side state attached to a browser by a cookie token.
//
// A Session is owned by a single request at a time and is not safe for
// concurrent use.
type Session struct {
	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time

	UserID    *string        // nil = anonymous
	Values    map[string]any // JSON-compatible values
	ID        string
	Token     string
	IP        string
	UserAgent string

	previousToken string
	dirty         bool
	isNew         bool
}

// New creates an unsaved session. It is new but not dirty, so an untouched
// session never reaches the store.
func New(id, token string, expiresAt time.Time) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Token:        token,
		Values:       make(map[string]any),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    expiresAt,
		isNew:        true,
	}
}

// IsAuthenticated reports whether a user is attached.
func (s *Session) IsAuthenticated() bool {
	return s.UserID != nil && *s.UserID != ""
}

// SetUser attaches a user id.
func (s *Session) SetUser(id string) {
	s.UserID = &id
	s.dirty = true
}

// Forget detaches the user and drops all values.
func (s *Session) Forget() {
	s.UserID = nil
	clear(s.Values)
	s.dirty = true
}

// Set stores a value.
func (s *Session) Set(key string, val any) {
	if s.Values == nil {
		s.Values = make(map[string]any)
	}
	s.Values[key] = val
	s.dirty = true
}

// Get returns a stored value.
func (s *Session) Get(key string) (any, bool) {
	val, ok := s.Values[key]
	return val, ok
}

// Delete removes a value. The session only becomes dirty if the key existed.
func (s *Session) Delete(key string) {
	if _, ok := s.Values[key]; ok {
		delete(s.Values, key)
		s.dirty = true
	}
}

// Pull returns a value and removes it, for flash-style data.
func (s *Session) Pull(key string) (any, bool) {
	val, ok := s.Get(key)
	if ok {
		s.Delete(key)
	}
	return val, ok
}

// Rotate replaces the token. Stores keyed by token use PreviousToken to drop
// the old entry on the next Update.
func (s *Session) Rotate(token string) {
	if s.previousToken == "" {
		s.previousToken = s.Token
	}
	s.Token = token
	s.dirty = true
}

// PreviousToken returns the token replaced by Rotate, if any.
func (s *Session) PreviousToken() string {
	return s.previousToken
}

// Extend moves the expiry to now+ttl.
func (s *Session) Extend(ttl time.Duration) {
	s.ExpiresAt = time.Now().Add(ttl)
	s.dirty = true
}

// IsDirty reports unsaved changes.
func (s *Session) IsDirty() bool { return s.dirty }

// IsNew reports whether the session was never persisted.
func (s *Session) IsNew() bool { return s.isNew }

// MarkDirty forces the next save.
func (s *Session) MarkDirty() { s.dirty = true }

// Saved records a successful write to the store.
func (s *Session) Saved() {
	s.dirty = false
	s.isNew = false
	s.previousToken = ""
}

// IsExpired reports whether ExpiresAt has passed.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Clone returns a deep-enough copy for stores that keep sessions in memory.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Values = maps.Clone(s.Values)
	if cp.Values == nil {
		cp.Values = make(map[string]any)
	}
	if s.UserID != nil {
		id := *s.UserID
		cp.UserID = &id
	}
	return &cp
}

// Value returns the value under key as T.
func Value[T any](s *Session, key string) (T, error) {
	var zero T
	if s == nil {
		return zero, ErrNotFound
	}
	val, ok := s.Get(key)
	if !ok {
		return zero, ErrNotFound
	}
	typed, ok := val.(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "key %q", key)
	}
	return typed, nil
}

// ValueOr is Value with a default on any failure.
func ValueOr[T any](s *Session, key string, def T) T {
	val, err := Value[T](s, key)
	if err != nil {
		return def
	}
	return val
}
