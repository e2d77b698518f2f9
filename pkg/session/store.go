package session

import (
	"context"
	"time"
)

// Store persists sessions. The request lifecycle only calls Create and Update
// after the response has been sent.
type Store interface {
	// Create persists a session that has never been saved.
	Create(ctx context.Context, s *Session) error

	// Get loads a session by token. Returns ErrNotFound or ErrExpired.
	Get(ctx context.Context, token string) (*Session, error)

	// Update saves an existing session, honouring PreviousToken.
	Update(ctx context.Context, s *Session) error

	// Delete removes a session by id.
	Delete(ctx context.Context, id string) error

	// DeleteByUserID removes every session of a user.
	DeleteByUserID(ctx context.Context, userID string) error
}

// Sweeper is implemented by stores that need expired rows removed periodically.
type Sweeper interface {
	Sweep(ctx context.Context, before time.Time) (int, error)
}
