package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrMissingToken = errors.New("auth: missing token")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token expired")
	ErrUnknownUser  = errors.New("auth: unknown user")
)

// Authenticatable is anything that can be attached to a request as its user.
type Authenticatable interface {
	AuthID() string
}

// Provider authenticates a request.
type Provider interface {
	Authenticate(ctx context.Context, r *http.Request) (Authenticatable, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, r *http.Request) (Authenticatable, error)

func (f ProviderFunc) Authenticate(ctx context.Context, r *http.Request) (Authenticatable, error) {
	return f(ctx, r)
}

// UserResolver loads a user by id.
type UserResolver func(ctx context.Context, id string) (Authenticatable, error)

// Subject is a minimal Authenticatable carrying only an id.
type Subject string

func (s Subject) AuthID() string { return string(s) }

// Source reads a candidate token from a request.
type Source func(r *http.Request) (string, bool)

// Extractor tries sources in order and returns the first non-empty value.
type Extractor []Source

// Extract returns the first token found.
func (e Extractor) Extract(r *http.Request) (string, bool) {
	for _, src := range e {
		if v, ok := src(r); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// FromBearer reads "Authorization: Bearer <token>", case-insensitive on the scheme.
func FromBearer() Source {
	return func(r *http.Request) (string, bool) {
		h := r.Header.Get("Authorization")
		if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
			return "", false
		}
		tok := strings.TrimSpace(h[7:])
		return tok, tok != ""
	}
}

// FromHeader reads a raw header.
func FromHeader(name string) Source {
	return func(r *http.Request) (string, bool) {
		v := r.Header.Get(name)
		return v, v != ""
	}
}

// FromCookie reads a plain request cookie.
func FromCookie(name string) Source {
	return func(r *http.Request) (string, bool) {
		c, err := r.Cookie(name)
		if err != nil {
			return "", false
		}
		return c.Value, c.Value != ""
	}
}

// FromQuery reads a query parameter.
func FromQuery(name string) Source {
	return func(r *http.Request) (string, bool) {
		v := r.URL.Query().Get(name)
		return v, v != ""
	}
}
