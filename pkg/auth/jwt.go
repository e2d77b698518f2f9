package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// MinSecretLength is the shortest HS256 secret NewJWT accepts.
const MinSecretLength = 32

// ErrWeakSecret is returned by NewJWT for short secrets.
var ErrWeakSecret = errors.New("auth: jwt secret must be at least 32 bytes")

// JWT issues and verifies HS256 tokens.
type JWT struct {
	secret    []byte
	issuer    string
	audience  string
	leeway    time.Duration
	resolve   UserResolver
	extractor Extractor
	now       func() time.Time
}

// JWTOption configures a JWT provider.
type JWTOption func(*JWT)

// WithIssuer sets and requires the iss claim.
func WithIssuer(iss string) JWTOption {
	return func(j *JWT) { j.issuer = iss }
}

// WithAudience sets and requires the aud claim.
func WithAudience(aud string) JWTOption {
	return func(j *JWT) { j.audience = aud }
}

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) JWTOption {
	return func(j *JWT) { j.leeway = d }
}

// WithResolver loads the user for the sub claim. Without one, a Subject is returned.
func WithResolver(fn UserResolver) JWTOption {
	return func(j *JWT) { j.resolve = fn }
}

// WithExtractor replaces the default bearer-only extractor.
func WithExtractor(sources ...Source) JWTOption {
	return func(j *JWT) { j.extractor = Extractor(sources) }
}

// NewJWT creates a provider signing with secret.
func NewJWT(secret []byte, opts ...JWTOption) (*JWT, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	j := &JWT{
		secret:    secret,
		leeway:    jwt.DefaultLeeway,
		extractor: Extractor{FromBearer()},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue signs a token for userID valid for ttl.
func (j *JWT) Issue(userID string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: j.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", errors.Wrap(err, "auth: signer")
	}

	now := j.now()
	claims := jwt.Claims{
		Subject:   userID,
		Issuer:    j.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
	}
	if j.audience != "" {
		claims.Audience = jwt.Audience{j.audience}
	}
	tok, err := jwt.Signed(signer).Claims(claims).Serialize()
	return tok, errors.Wrap(err, "auth: sign")
}

// Verify parses raw and returns its validated claims.
func (j *JWT) Verify(raw string) (*jwt.Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: parse"), ErrInvalidToken)
	}

	var claims jwt.Claims
	if err := tok.Claims(j.secret, &claims); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "auth: signature"), ErrInvalidToken)
	}

	expected := jwt.Expected{Issuer: j.issuer, Time: j.now()}
	if j.audience != "" {
		expected.AnyAudience = jwt.Audience{j.audience}
	}
	if err := claims.ValidateWithLeeway(expected, j.leeway); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrExpiredToken
		}
		return nil, errors.Mark(errors.Wrap(err, "auth: claims"), ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(ErrInvalidToken, "auth: empty subject")
	}
	return &claims, nil
}

// Authenticate implements Provider.
func (j *JWT) Authenticate(ctx context.Context, r *http.Request) (Authenticatable, error) {
	raw, ok := j.extractor.Extract(r)
	if !ok {
		return nil, ErrMissingToken
	}
	claims, err := j.Verify(raw)
	if err != nil {
		return nil, err
	}
	if j.resolve == nil {
		return Subject(claims.Subject), nil
	}
	user, err := j.resolve(ctx, claims.Subject)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "auth: resolve %s", claims.Subject), ErrUnknownUser)
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	return user, nil
}

var _ Provider = (*JWT)(nil)
