package internal

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig configures the CORS responder.
type CORSConfig struct {
	Origins          []string
	Methods          []string
	Headers          []string
	ExposedHeaders   []string
	MaxAge           time.Duration
	PreflightStatus  int
	AllowCredentials bool
}

// DefaultPreflightStatus answers preflight requests.
const DefaultPreflightStatus = http.StatusAccepted

var defaultCORSMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete,
}

type corsResponder struct {
	origins  map[string]struct{}
	methods  string
	headers  string
	exposed  string
	maxAge   string
	status   int
	allowAll bool
	creds    bool
}

func newCORSResponder(cfg CORSConfig) *corsResponder {
	c := &corsResponder{
		origins: make(map[string]struct{}, len(cfg.Origins)),
		status:  cfg.PreflightStatus,
		creds:   cfg.AllowCredentials,
		headers: strings.Join(cfg.Headers, ", "),
		exposed: strings.Join(cfg.ExposedHeaders, ", "),
	}
	if c.status == 0 {
		c.status = DefaultPreflightStatus
	}
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	c.methods = strings.Join(methods, ", ")
	if cfg.MaxAge > 0 {
		c.maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}
	if len(cfg.Origins) == 0 || slices.Contains(cfg.Origins, "*") {
		c.allowAll = true
	}
	for _, o := range cfg.Origins {
		c.origins[strings.ToLower(o)] = struct{}{}
	}
	return c
}

func (c *corsResponder) isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func (c *corsResponder) allowed(origin string) bool {
	if c.allowAll {
		return true
	}
	_, ok := c.origins[strings.ToLower(origin)]
	return ok
}

// allowOrigin sets the origin headers. With credentials the origin is echoed,
// since browsers reject "*" there.
func (c *corsResponder) allowOrigin(h http.Header, origin string) {
	if c.allowAll && !c.creds {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	if c.creds {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// preflight answers an OPTIONS preflight. Disallowed origins get the status
// without CORS headers.
func (c *corsResponder) preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	h := w.Header()
	if c.allowed(origin) {
		c.allowOrigin(h, origin)
		h.Set("Access-Control-Allow-Methods", c.methods)
		if c.headers != "" {
			h.Set("Access-Control-Allow-Headers", c.headers)
		} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
			h.Set("Access-Control-Allow-Headers", req)
			h.Add("Vary", "Access-Control-Request-Headers")
		}
		if c.maxAge != "" {
			h.Set("Access-Control-Max-Age", c.maxAge)
		}
	}
	w.WriteHeader(c.status)
}

// decorate adds CORS headers to a regular request's response.
func (c *corsResponder) decorate(h http.Header, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !c.allowed(origin) {
		return
	}
	c.allowOrigin(h, origin)
	if c.exposed != "" {
		h.Set("Access-Control-Expose-Headers", c.exposed)
	}
}
