package config

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps validation failures of LoadServer.
var ErrInvalid = errors.New("config: invalid server configuration")

// Server is the typed view of the "server" subtree.
type Server struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
	FallbackStatus  int           `koanf:"fallback_status"  validate:"min=400,max=599"`
	TrustProxy      bool          `koanf:"trust_proxy"`

	CORS      CORS      `koanf:"cors"`
	Multipart Multipart `koanf:"multipart"`
	Cookies   Cookies   `koanf:"cookies"`
	Session   Session   `koanf:"session"`
}

// Addr joins host and port.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CORS settings. An empty origin list disables CORS handling.
type CORS struct {
	Origins          []string      `koanf:"origins"`
	Methods          []string      `koanf:"methods"`
	Headers          []string      `koanf:"headers"`
	ExposedHeaders   []string      `koanf:"exposed_headers"`
	AllowCredentials bool          `koanf:"allow_credentials"`
	MaxAge           time.Duration `koanf:"max_age"`
	PreflightStatus  int           `koanf:"preflight_status" validate:"omitempty,min=200,max=299"`
}

// Multipart upload limits.
type Multipart struct {
	MaxFileSize  int64  `koanf:"max_file_size"  validate:"min=0"`
	MaxFiles     int    `koanf:"max_files"      validate:"min=0"`
	MaxFieldSize int64  `koanf:"max_field_size" validate:"min=0"`
	TempDir      string `koanf:"temp_dir"`
}

// Cookies configures the cookie manager.
type Cookies struct {
	Secret   string   `koanf:"secret"   validate:"omitempty,min=32"`
	Domain   string   `koanf:"domain"`
	Path     string   `koanf:"path"`
	Secure   bool     `koanf:"secure"`
	SameSite string   `koanf:"same_site" validate:"omitempty,oneof=lax strict none"`
	Plain    []string `koanf:"plain"`
}

// SameSiteMode maps the configured name to http.SameSite.
func (c Cookies) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Session cookie settings.
type Session struct {
	Enabled    bool          `koanf:"enabled"`
	CookieName string        `koanf:"cookie_name"`
	TTL        time.Duration `koanf:"ttl"`
}

// ServerDefaults are applied by LoadServer before reading the repository.
var ServerDefaults = map[string]any{
	"server.host":                     "",
	"server.port":                     3000,
	"server.shutdown_timeout":         "10s",
	"server.fallback_status":          500,
	"server.cors.methods":             []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
	"server.cors.preflight_status":    202,
	"server.multipart.max_file_size":  10 << 20,
	"server.multipart.max_files":      10,
	"server.multipart.max_field_size": 1 << 20,
	"server.cookies.path":             "/",
	"server.cookies.same_site":        "lax",
	"server.session.cookie_name":      "kiln_session",
	"server.session.ttl":              "720h",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadServer decodes and validates the "server" subtree, filling unset keys from ServerDefaults.
func LoadServer(r *Repository) (Server, error) {
	for key, val := range ServerDefaults {
		if !r.Has(key) {
			if err := r.Set(key, val); err != nil {
				return Server{}, errors.Wrapf(err, "config: default %q", key)
			}
		}
	}

	var s Server
	if err := r.Unmarshal("server", &s); err != nil {
		return Server{}, errors.Mark(errors.Wrap(err, "config: decode server"), ErrInvalid)
	}
	if err := validate.Struct(s); err != nil {
		return Server{}, errors.Mark(errors.Wrap(err, "config: validate server"), ErrInvalid)
	}
	return s, nil
}
