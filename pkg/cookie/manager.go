package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Errors.
var (
	ErrNoSecret  = errors.New("cookie: secret required")
	ErrBadSig    = errors.New("cookie: invalid signature")
	ErrDecrypt   = errors.New("cookie: decryption failed")
	ErrEmptyName = errors.New("cookie: empty name")
)

// MinSecretLength is the shortest secret WithSecret accepts.
const MinSecretLength = 32

// Manager builds outgoing cookies and decodes incoming ones.
type Manager struct {
	secret   []byte
	plain    map[string]struct{}
	domain   string
	path     string
	secure   bool
	httpOnly bool
	sameSite http.SameSite
}

// Option configures the Manager.
type Option func(*Manager)

// New creates a cookie Manager with the given options.
func New(opts ...Option) *Manager {
	m := &Manager{
		path:     "/",
		httpOnly: true,
		sameSite: http.SameSiteLaxMode,
		plain:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithSecret enables encryption. Secrets shorter than MinSecretLength are ignored.
func WithSecret(secret string) Option {
	return func(m *Manager) {
		if len(secret) >= MinSecretLength {
			m.secret = []byte(secret)
		}
	}
}

// WithPlain exempts the named cookies from encryption.
func WithPlain(names ...string) Option {
	return func(m *Manager) {
		for _, n := range names {
			m.plain[n] = struct{}{}
		}
	}
}

// WithDomain sets the cookie domain.
func WithDomain(domain string) Option {
	return func(m *Manager) {
		m.domain = domain
	}
}

// WithPath sets the cookie path.
func WithPath(path string) Option {
	return func(m *Manager) {
		m.path = path
	}
}

// WithSecure sets the Secure flag.
func WithSecure(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithHTTPOnly sets the HttpOnly flag.
func WithHTTPOnly(httpOnly bool) Option {
	return func(m *Manager) {
		m.httpOnly = httpOnly
	}
}

// WithSameSite sets the SameSite attribute.
func WithSameSite(ss http.SameSite) Option {
	return func(m *Manager) {
		m.sameSite = ss
	}
}

// Encrypts reports whether values of the named cookie are sealed.
func (m *Manager) Encrypts(name string) bool {
	if m.secret == nil {
		return false
	}
	_, exempt := m.plain[name]
	return !exempt
}

// Build returns a cookie carrying the manager defaults with attrs applied on top.
// The value is sealed when Encrypts(name) is true.
func (m *Manager) Build(name, value string, attrs ...Attr) (*http.Cookie, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		Secure:   m.secure,
		HttpOnly: m.httpOnly,
		SameSite: m.sameSite,
	}
	for _, a := range attrs {
		a(c)
	}
	if c.MaxAge < 0 {
		c.Value = ""
		return c, nil
	}
	if m.Encrypts(name) {
		sealed, err := m.Encrypt(value)
		if err != nil {
			return nil, err
		}
		c.Value = sealed
	}
	return c, nil
}

// Decode returns the plain value of an incoming cookie.
func (m *Manager) Decode(c *http.Cookie) (string, error) {
	if !m.Encrypts(c.Name) {
		return c.Value, nil
	}
	return m.Decrypt(c.Value)
}

// Encrypt seals value with AES-GCM and encodes it as URL-safe base64.
func (m *Manager) Encrypt(value string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	aead, err := m.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "cookie: nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (m *Manager) Decrypt(encoded string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecrypt
	}
	aead, err := m.aead()
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, body := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

// Sign returns value with an HMAC-SHA256 signature appended.
func (m *Manager) Sign(value string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	return base64.RawURLEncoding.EncodeToString([]byte(value)) + "." +
		base64.RawURLEncoding.EncodeToString(m.mac([]byte(value))), nil
}

// Verify checks a value produced by Sign and returns the original.
func (m *Manager) Verify(signed string) (string, error) {
	if m.secret == nil {
		return "", ErrNoSecret
	}
	raw, sig, ok := strings.Cut(signed, ".")
	if !ok {
		return "", ErrBadSig
	}
	value, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", ErrBadSig
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", ErrBadSig
	}
	if !hmac.Equal(got, m.mac(value)) {
		return "", ErrBadSig
	}
	return string(value), nil
}

func (m *Manager) mac(value []byte) []byte {
	h := hmac.New(sha256.New, m.secret)
	h.Write(value)
	return h.Sum(nil)
}

func (m *Manager) aead() (cipher.AEAD, error) {
	key := sha256.Sum256(m.secret)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "cookie: cipher")
	}
	return cipher.NewGCM(block)
}
