package cookie

import (
	"net/http"
	"time"
)

// Attr overrides a single attribute of a cookie built by Manager.Build.
type Attr func(*http.Cookie)

// MaxAge sets Max-Age in seconds. A negative value deletes the cookie.
func MaxAge(seconds int) Attr {
	return func(c *http.Cookie) { c.MaxAge = seconds }
}

// Expires sets an absolute expiry.
func Expires(t time.Time) Attr {
	return func(c *http.Cookie) { c.Expires = t }
}

// Path overrides the cookie path.
func Path(p string) Attr {
	return func(c *http.Cookie) { c.Path = p }
}

// Domain overrides the cookie domain.
func Domain(d string) Attr {
	return func(c *http.Cookie) { c.Domain = d }
}

// Secure overrides the Secure flag.
func Secure(v bool) Attr {
	return func(c *http.Cookie) { c.Secure = v }
}

// HTTPOnly overrides the HttpOnly flag.
func HTTPOnly(v bool) Attr {
	return func(c *http.Cookie) { c.HttpOnly = v }
}

// SameSite overrides the SameSite attribute.
func SameSite(s http.SameSite) Attr {
	return func(c *http.Cookie) { c.SameSite = s }
}
