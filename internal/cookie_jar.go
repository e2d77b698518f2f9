package internal

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/kilnhq/kiln/pkg/cookie"
)

type pendingCookie struct {
	name  string
	value string
	attrs []cookie.Attr
}

// CookieJar holds the decoded request cookies and the cookies queued for the
// response. Queued cookies are written as Set-Cookie headers at on-send.
type CookieJar struct {
	manager  *cookie.Manager
	incoming map[string]string
	pending  []pendingCookie
	mu       sync.Mutex
}

func newCookieJar(m *cookie.Manager) *CookieJar {
	if m == nil {
		m = cookie.New()
	}
	return &CookieJar{manager: m, incoming: make(map[string]string)}
}

// load decodes the request cookies. Cookies that fail to decrypt are dropped.
func (j *CookieJar) load(r *http.Request, logger *slog.Logger) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range r.Cookies() {
		v, err := j.manager.Decode(c)
		if err != nil {
			logger.DebugContext(r.Context(), "dropping undecodable cookie",
				slog.String("cookie", c.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		j.incoming[c.Name] = v
	}
}

// Get returns a request cookie value, or a value queued during this request.
func (j *CookieJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.pending) - 1; i >= 0; i-- {
		if j.pending[i].name == name {
			return j.pending[i].value, j.pending[i].value != ""
		}
	}
	v, ok := j.incoming[name]
	return v, ok
}

// Has reports whether Get would find name.
func (j *CookieJar) Has(name string) bool {
	_, ok := j.Get(name)
	return ok
}

// Put queues a cookie. A later Put of the same name replaces it.
func (j *CookieJar) Put(name, value string, attrs ...cookie.Attr) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.drop(name)
	j.pending = append(j.pending, pendingCookie{name: name, value: value, attrs: attrs})
}

// Forget queues an expired cookie so the client removes it.
func (j *CookieJar) Forget(name string) {
	j.Put(name, "", cookie.MaxAge(-1))
}

// Pending returns the names of the queued cookies.
func (j *CookieJar) Pending() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	names := make([]string, 0, len(j.pending))
	for _, p := range j.pending {
		names = append(names, p.name)
	}
	return names
}

func (j *CookieJar) drop(name string) {
	kept := j.pending[:0]
	for _, p := range j.pending {
		if p.name != name {
			kept = append(kept, p)
		}
	}
	j.pending = kept
}

// flush writes queued cookies to h and empties the queue.
func (j *CookieJar) flush(h http.Header) error {
	j.mu.Lock()
	pending := j.pending
	j.pending = nil
	j.mu.Unlock()

	for _, p := range pending {
		c, err := j.manager.Build(p.name, p.value, p.attrs...)
		if err != nil {
			return err
		}
		if v := c.String(); v != "" {
			h.Add("Set-Cookie", v)
		}
	}
	return nil
}
