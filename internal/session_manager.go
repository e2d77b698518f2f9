package internal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/kilnhq/kiln/pkg/cookie"
	"github.com/kilnhq/kiln/pkg/session"
)

// Session defaults.
const (
	DefaultSessionCookie = "kiln_session"
	DefaultSessionTTL    = 30 * 24 * time.Hour
)

// SessionManager loads sessions named by the session cookie and persists
// them after the response.
type SessionManager struct {
	store      session.Store
	logger     *slog.Logger
	cookieName string
	ttl        time.Duration
	entropy    io.Reader
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithSessionCookie sets the cookie that carries the session token.
func WithSessionCookie(name string) SessionOption {
	return func(m *SessionManager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithSessionTTL sets the session lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSessionEntropy sets the source session tokens are read from.
// Defaults to crypto/rand.
func WithSessionEntropy(r io.Reader) SessionOption {
	return func(m *SessionManager) {
		if r != nil {
			m.entropy = r
		}
	}
}

// NewSessionManager creates a manager over store.
func NewSessionManager(store session.Store, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:      store,
		logger:     slog.New(slog.DiscardHandler),
		cookieName: DefaultSessionCookie,
		ttl:        DefaultSessionTTL,
		entropy:    rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CookieName returns the session cookie name.
func (m *SessionManager) CookieName() string { return m.cookieName }

// TTL returns the session lifetime.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Load returns the session named by the request cookie, or a fresh one.
// A fresh session is not stored until something is written into it. The
// only error is a failure to generate a token for the fresh session.
func (m *SessionManager) Load(ctx context.Context, r *http.Request, jar *CookieJar) (*session.Session, error) {
	if token, ok := jar.Get(m.cookieName); ok && token != "" {
		sess, err := m.store.Get(ctx, token)
		switch {
		case err == nil && !sess.IsExpired():
			return sess, nil
		case err == nil, errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		default:
			m.logger.WarnContext(ctx, "session load failed, starting a new one",
				slog.String("error", err.Error()),
			)
		}
	}
	return m.start(ctx, r)
}

func (m *SessionManager) start(ctx context.Context, r *http.Request) (*session.Session, error) {
	token, err := m.newToken()
	if err != nil {
		m.logger.ErrorContext(ctx, "session token generation failed", slog.String("error", err.Error()))
		return nil, err
	}
	sess := session.New(uuid.NewString(), token, time.Now().Add(m.ttl))
	sess.IP = clientIP(r)
	sess.UserAgent = r.UserAgent()
	return sess, nil
}

// queueCookie puts the session cookie into the jar when the client needs a
// new one: for a new session that got written to, or after rotation.
func (m *SessionManager) queueCookie(jar *CookieJar, sess *session.Session, destroyed bool) {
	switch {
	case destroyed:
		jar.Forget(m.cookieName)
	case sess.IsNew() && sess.IsDirty(), sess.PreviousToken() != "":
		jar.Put(m.cookieName, sess.Token, cookie.MaxAge(int(m.ttl.Seconds())))
	}
}

// Persist writes sess to the store: Create for a new dirty session, Update for
// a stored dirty one, Delete when destroyed. Untouched sessions are skipped.
// It reports whether the store was called.
func (m *SessionManager) Persist(ctx context.Context, sess *session.Session, destroyed bool) (bool, error) {
	switch {
	case destroyed:
		if sess.IsNew() {
			return false, nil
		}
		return true, errors.Wrap(m.store.Delete(ctx, sess.ID), "kiln: delete session")
	case !sess.IsDirty() && sess.PreviousToken() == "":
		return false, nil
	case sess.IsNew():
		if err := m.store.Create(ctx, sess); err != nil {
			return true, errors.Wrap(err, "kiln: create session")
		}
	default:
		if err := m.store.Update(ctx, sess); err != nil {
			return true, errors.Wrap(err, "kiln: update session")
		}
	}
	sess.Saved()
	return true, nil
}

func (m *SessionManager) newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(m.entropy, b); err != nil {
		return "", errors.Wrap(err, "kiln: session token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
