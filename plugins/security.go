package plugins

import (
	"strconv"
	"time"

	"github.com/kilnhq/kiln/internal"
)

// SecurityConfig lists the headers SecurityHeaders sets. Empty values are skipped.
type SecurityConfig struct {
	ContentTypeOptions    string
	FrameOptions          string
	ReferrerPolicy        string
	ContentSecurityPolicy string
	CrossOriginOpener     string
	HSTSMaxAge            time.Duration
}

// DefaultSecurityConfig is used by SecurityHeaders without options.
var DefaultSecurityConfig = SecurityConfig{
	ContentTypeOptions: "nosniff",
	FrameOptions:       "SAMEORIGIN",
	ReferrerPolicy:     "no-referrer",
	CrossOriginOpener:  "same-origin",
	HSTSMaxAge:         180 * 24 * time.Hour,
}

// SecurityOption adjusts a SecurityConfig.
type SecurityOption func(*SecurityConfig)

// WithCSP sets Content-Security-Policy.
func WithCSP(policy string) SecurityOption {
	return func(c *SecurityConfig) { c.ContentSecurityPolicy = policy }
}

// WithFrameOptions sets X-Frame-Options.
func WithFrameOptions(v string) SecurityOption {
	return func(c *SecurityConfig) { c.FrameOptions = v }
}

// WithHSTS sets the Strict-Transport-Security max-age. Zero disables it.
func WithHSTS(maxAge time.Duration) SecurityOption {
	return func(c *SecurityConfig) { c.HSTSMaxAge = maxAge }
}

type securityHeaders struct {
	headers [][2]string
}

// SecurityHeaders sets protective response headers on every response.
// Headers already set by the handler are kept.
func SecurityHeaders(opts ...SecurityOption) internal.Plugin {
	cfg := DefaultSecurityConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &securityHeaders{}
	add := func(name, value string) {
		if value != "" {
			p.headers = append(p.headers, [2]string{name, value})
		}
	}
	add("X-Content-Type-Options", cfg.ContentTypeOptions)
	add("X-Frame-Options", cfg.FrameOptions)
	add("Referrer-Policy", cfg.ReferrerPolicy)
	add("Content-Security-Policy", cfg.ContentSecurityPolicy)
	add("Cross-Origin-Opener-Policy", cfg.CrossOriginOpener)
	if cfg.HSTSMaxAge > 0 {
		add("Strict-Transport-Security", "max-age="+strconv.Itoa(int(cfg.HSTSMaxAge.Seconds()))+"; includeSubDomains")
	}
	return p
}

func (p *securityHeaders) Name() string { return "security-headers" }

func (p *securityHeaders) Install(h *internal.PluginHost) error {
	return h.AddHook(internal.Hook{
		Name:  "security-headers",
		Point: internal.OnSend,
		Fn: func(e *internal.HookEvent) error {
			hdr := e.Response.Header()
			for _, kv := range p.headers {
				if hdr.Get(kv[0]) == "" {
					hdr.Set(kv[0], kv[1])
				}
			}
			return nil
		},
	})
}
