package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix read by Load.
const DefaultEnvPrefix = "KILN_"

// ErrLoad wraps every failure while reading a source.
var ErrLoad = errors.New("config: load failed")

// Repository is a read-mostly key/value view over the layered sources.
// Keys are dot-delimited.
type Repository struct {
	k *koanf.Koanf
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{k: koanf.New(".")}
}

type loadOptions struct {
	defaults  map[string]any
	files     []string
	dotenv    []string
	envPrefix string
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithDefaults seeds keys before any source is read.
func WithDefaults(values map[string]any) LoadOption {
	return func(o *loadOptions) {
		for k, v := range values {
			o.defaults[k] = v
		}
	}
}

// WithFile adds a YAML file. Missing files are skipped.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) { o.files = append(o.files, path) }
}

// WithDotenv adds a .env file. Missing files are skipped.
func WithDotenv(path string) LoadOption {
	return func(o *loadOptions) { o.dotenv = append(o.dotenv, path) }
}

// WithEnvPrefix overrides DefaultEnvPrefix. An empty prefix disables env overrides.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// Load reads every configured source in order.
func Load(opts ...LoadOption) (*Repository, error) {
	o := &loadOptions{defaults: map[string]any{}, envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(o)
	}

	r := New()
	for key, val := range o.defaults {
		if err := r.k.Set(key, val); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "config: default %q", key), ErrLoad)
		}
	}

	for _, path := range o.files {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := r.k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "config: read %s", path), ErrLoad)
		}
	}

	for _, path := range o.dotenv {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "config: read %s", path), ErrLoad)
		}
	}

	if o.envPrefix != "" {
		prefix := o.envPrefix
		err := r.k.Load(env.Provider(prefix, ".", func(s string) string {
			return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, prefix), "__", "."))
		}), nil)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "config: read env"), ErrLoad)
		}
	}
	return r, nil
}

// Has reports whether key is set.
func (r *Repository) Has(key string) bool { return r.k.Exists(key) }

// Get returns the raw value under key, or def when unset.
func (r *Repository) Get(key string, def any) any {
	if !r.k.Exists(key) {
		return def
	}
	return r.k.Get(key)
}

// Set overrides a key at runtime.
func (r *Repository) Set(key string, val any) error {
	return r.k.Set(key, val)
}

// String returns key as a string, or def when unset.
func (r *Repository) String(key, def string) string {
	if !r.k.Exists(key) {
		return def
	}
	return r.k.String(key)
}

// Int returns key as an int, or def when unset.
func (r *Repository) Int(key string, def int) int {
	if !r.k.Exists(key) {
		return def
	}
	return r.k.Int(key)
}

// Bool returns key as a bool, or def when unset.
func (r *Repository) Bool(key string, def bool) bool {
	if !r.k.Exists(key) {
		return def
	}
	return r.k.Bool(key)
}

// Duration returns key parsed as a duration, or def when unset.
func (r *Repository) Duration(key string, def time.Duration) time.Duration {
	if !r.k.Exists(key) {
		return def
	}
	return r.k.Duration(key)
}

// Strings returns key as a string slice. A comma-separated string is split.
func (r *Repository) Strings(key string, def []string) []string {
	if !r.k.Exists(key) {
		return def
	}
	if s, ok := r.k.Get(key).(string); ok {
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return r.k.Strings(key)
}

// Unmarshal decodes the subtree at path into out using koanf struct tags.
func (r *Repository) Unmarshal(path string, out any) error {
	return r.k.UnmarshalWithConf(path, out, koanf.UnmarshalConf{Tag: "koanf"})
}

// Keys lists every key that is set.
func (r *Repository) Keys() []string { return r.k.Keys() }
