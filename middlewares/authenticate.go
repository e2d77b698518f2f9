package middlewares

import (
	"github.com/cockroachdb/errors"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/pkg/auth"
)

// AuthenticateConfig configures Authenticate.
type AuthenticateConfig struct {
	// Optional lets requests without credentials through unauthorised.
	// Invalid credentials are still rejected.
	Optional bool
}

// AuthenticateOption configures AuthenticateConfig.
type AuthenticateOption func(*AuthenticateConfig)

// WithOptionalAuth lets anonymous requests pass.
func WithOptionalAuth() AuthenticateOption {
	return func(cfg *AuthenticateConfig) {
		cfg.Optional = true
	}
}

// Authenticate resolves the user with p and authorises the request.
// A request that is already authorised is left alone.
func Authenticate(p auth.Provider, opts ...AuthenticateOption) internal.Middleware {
	cfg := &AuthenticateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c internal.Context) error {
		if c.IsAuthenticated() {
			return nil
		}
		user, err := p.Authenticate(c, c.Request())
		switch {
		case err == nil:
			return c.AuthoriseAs(user)
		case errors.Is(err, auth.ErrMissingToken):
			if cfg.Optional {
				return nil
			}
			return internal.Unauthorised("missing authentication token").WithCause(err)
		case errors.Is(err, auth.ErrExpiredToken):
			return internal.Unauthorised("token expired").WithCause(err)
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownUser):
			return internal.Unauthorised("invalid token").WithCause(err)
		default:
			return errors.Wrap(err, "authenticate")
		}
	}
}

// SessionUser authorises the request as the user stored in the session.
// Requests without a session or without a user pass through.
func SessionUser(resolve auth.UserResolver) internal.Middleware {
	return func(c internal.Context) error {
		sess := c.Session()
		if c.IsAuthenticated() || sess == nil || !sess.IsAuthenticated() {
			return nil
		}
		user, err := resolve(c, *sess.UserID)
		if errors.Is(err, auth.ErrUnknownUser) {
			sess.Forget()
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "resolve session user")
		}
		return c.AuthoriseAs(user)
	}
}

// RequireUser rejects requests that no earlier middleware authorised.
func RequireUser() internal.Middleware {
	return func(c internal.Context) error {
		if !c.IsAuthenticated() {
			return internal.Unauthorised("authentication required")
		}
		return nil
	}
}

// GuestOnly rejects authorised requests with 403.
func GuestOnly() internal.Middleware {
	return func(c internal.Context) error {
		if c.IsAuthenticated() {
			return internal.Forbidden("already signed in")
		}
		return nil
	}
}
