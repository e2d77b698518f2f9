package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kilnhq/kiln/pkg/auth"
	"github.com/kilnhq/kiln/pkg/session"
)

// Context is the per-request state shared by hooks, middleware and handlers.
// It implements context.Context by delegating to the request context.
type Context interface {
	context.Context

	// Request returns the current *http.Request.
	Request() *http.Request

	// Response returns the response writer.
	Response() http.ResponseWriter

	// ID returns the request id, taken from X-Request-ID when present.
	ID() string

	Method() string
	URL() *url.URL

	// IP returns the client address. With proxy trust enabled this honours
	// X-Forwarded-For and X-Real-IP.
	IP() string

	// IsJSON reports whether the request body is JSON.
	IsJSON() bool

	// Param returns the URL parameter value by name.
	Param(name string) string

	// Query returns the query parameter value by name.
	Query(name string) string

	// FormValue returns a body field. Multipart fields come from the drained
	// body, urlencoded ones from the request.
	FormValue(name string) string

	// Input looks up a body field, then a query parameter, then returns def.
	Input(name, def string) string

	// Boolean interprets Input as a flag. "1", "true", "on" and "yes" are true.
	Boolean(name string, def bool) bool

	Header(name string) string
	SetHeader(name, value string)

	// BindJSON decodes the body into v and validates it.
	// Failures are returned as a 400 Exception.
	BindJSON(v any) error

	JSON(code int, v any) error
	String(code int, s string) error
	NoContent(code int) error
	Redirect(code int, url string) error

	// Written reports whether the response headers have been sent.
	Written() bool

	// User returns the authorised user, or nil.
	User() auth.Authenticatable

	// AuthoriseAs sets the user. It fails with ErrAlreadyAuthorised when a
	// user is already set.
	AuthoriseAs(u auth.Authenticatable) error

	// Reauthorise replaces the user unconditionally.
	Reauthorise(u auth.Authenticatable)

	IsAuthenticated() bool

	// Cookies returns the cookie jar.
	Cookies() *CookieJar

	// Session returns the session, or nil when sessions are not configured.
	Session() *session.Session

	IsUsingSession() bool

	// RotateSession gives the session a new token. The old token is removed
	// from the store when the session is persisted.
	RotateSession() error

	// DestroySession deletes the session after the response and expires its cookie.
	DestroySession()

	// Files returns the uploaded files in body order.
	Files() []*UploadedFile

	// File returns the first file uploaded under field.
	File(field string) (*UploadedFile, bool)

	HasFiles() bool

	// Route returns the matched route, or nil before routing.
	Route() *Route

	// Set stores a request-scoped value, retrievable with Get or Value.
	Set(key, value any)
	Get(key any) any

	Logger() *slog.Logger
	LogDebug(msg string, attrs ...any)
	LogInfo(msg string, attrs ...any)
	LogWarn(msg string, attrs ...any)
	LogError(msg string, attrs ...any)
}

type contextKey struct{}

// Bind stores c in r's context and returns the derived request.
func Bind(r *http.Request, c Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextKey{}, c))
}

// FromContext returns the Context bound to ctx.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(contextKey{}).(Context)
	return c, ok
}

// Current returns the Context bound to ctx. It panics with ErrContextNotBound
// when called outside a request.
func Current(ctx context.Context) Context {
	c, ok := FromContext(ctx)
	if !ok {
		panic(ErrContextNotBound)
	}
	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type requestContext struct {
	srv     *Server
	request *http.Request
	rw      *ResponseWriter
	out     http.ResponseWriter
	jar     *CookieJar
	route   *Route
	user    auth.Authenticatable
	session *session.Session
	form    url.Values
	files   []*UploadedFile
	id      string
	start   time.Time
	mu      sync.Mutex

	initiated        bool
	translated       bool
	sessionSaved     bool
	sessionDestroyed bool
}

// newRequestContext creates the context for one request and binds it.
func newRequestContext(s *Server, rw *ResponseWriter, r *http.Request) *requestContext {
	c := &requestContext{
		srv:   s,
		rw:    rw,
		out:   rw,
		jar:   newCookieJar(s.cookies),
		id:    requestID(r),
		start: time.Now(),
	}
	c.request = Bind(r, c)
	return c
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" && len(id) <= 128 {
		return id
	}
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// event builds a hook event for pt.
func (c *requestContext) event(pt Point) *HookEvent {
	return &HookEvent{
		Ctx:      c.request.Context(),
		Request:  c.request,
		Response: c.rw,
		Context:  c,
		Point:    pt,
	}
}

// adopt switches to the request and writer chi hands to the route handler,
// so that URL params resolve and writer wrapping by engine middleware applies.
// Written state is still tracked by rw, which sits underneath w.
func (c *requestContext) adopt(w http.ResponseWriter, r *http.Request, rt *Route) {
	if w != nil {
		c.out = w
	}
	c.request = r
	c.route = rt
}

// detach drops the cancellation of the request context for work that runs
// after the response.
func (c *requestContext) detach() {
	c.request = c.request.WithContext(context.WithoutCancel(c.request.Context()))
}

// initiateForRequest reads cookies into the jar and loads or starts the session.
func (c *requestContext) initiateForRequest(ctx context.Context) error {
	if c.initiated {
		return nil
	}
	c.initiated = true
	c.jar.load(c.request, c.srv.logger)
	if c.srv.sessions == nil {
		return nil
	}
	sess, err := c.srv.sessions.Load(ctx, c.request, c.jar)
	if err != nil {
		return err
	}
	c.session = sess
	return nil
}

func (c *requestContext) Deadline() (time.Time, bool) { return c.request.Context().Deadline() }
func (c *requestContext) Done() <-chan struct{}       { return c.request.Context().Done() }
func (c *requestContext) Err() error                  { return c.request.Context().Err() }
func (c *requestContext) Value(key any) any           { return c.request.Context().Value(key) }

func (c *requestContext) Request() *http.Request        { return c.request }
func (c *requestContext) Response() http.ResponseWriter { return c.out }
func (c *requestContext) ID() string                    { return c.id }
func (c *requestContext) Method() string                { return c.request.Method }
func (c *requestContext) URL() *url.URL                 { return c.request.URL }
func (c *requestContext) Route() *Route                 { return c.route }

func (c *requestContext) IP() string {
	return clientIP(c.request)
}

func (c *requestContext) IsJSON() bool {
	ct := c.request.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/json") || strings.Contains(ct, "+json")
}

func (c *requestContext) Param(name string) string {
	return chi.URLParam(c.request, name)
}

func (c *requestContext) Query(name string) string {
	return c.request.URL.Query().Get(name)
}

func (c *requestContext) FormValue(name string) string {
	if c.form != nil {
		return c.form.Get(name)
	}
	if c.request.Method == http.MethodGet || c.request.Method == http.MethodHead {
		return ""
	}
	return c.request.PostFormValue(name)
}

func (c *requestContext) Input(name, def string) string {
	if v := c.FormValue(name); v != "" {
		return v
	}
	if v := c.Query(name); v != "" {
		return v
	}
	return def
}

func (c *requestContext) Boolean(name string, def bool) bool {
	v := c.Input(name, "")
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func (c *requestContext) Header(name string) string {
	return c.request.Header.Get(name)
}

func (c *requestContext) SetHeader(name, value string) {
	c.out.Header().Set(name, value)
}

func (c *requestContext) BindJSON(v any) error {
	if err := json.NewDecoder(c.request.Body).Decode(v); err != nil {
		return BadRequest("invalid JSON body").WithCause(err)
	}
	if err := validate.StructCtx(c.request.Context(), v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return BadRequest("invalid request").WithCause(err)
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return NewException(http.StatusBadRequest, map[string]any{
			"message": "validation failed",
			"code":    http.StatusBadRequest,
			"errors":  fields,
		}).WithCause(err)
	}
	return nil
}

func (c *requestContext) JSON(code int, v any) error {
	c.out.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.out.WriteHeader(code)
	return json.NewEncoder(c.out).Encode(v)
}

func (c *requestContext) String(code int, s string) error {
	c.out.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.out.WriteHeader(code)
	_, err := c.out.Write([]byte(s))
	return err
}

func (c *requestContext) NoContent(code int) error {
	c.out.WriteHeader(code)
	return nil
}

func (c *requestContext) Redirect(code int, url string) error {
	if code < 300 || code > 399 {
		code = http.StatusFound
	}
	http.Redirect(c.out, c.request, url, code)
	return nil
}

func (c *requestContext) Written() bool {
	return c.rw.Written()
}

func (c *requestContext) User() auth.Authenticatable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *requestContext) AuthoriseAs(u auth.Authenticatable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil {
		return errors.WithStack(ErrAlreadyAuthorised)
	}
	c.user = u
	return nil
}

func (c *requestContext) Reauthorise(u auth.Authenticatable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
}

func (c *requestContext) IsAuthenticated() bool {
	return c.User() != nil
}

func (c *requestContext) Cookies() *CookieJar {
	return c.jar
}

func (c *requestContext) Session() *session.Session {
	return c.session
}

func (c *requestContext) IsUsingSession() bool {
	return c.session != nil
}

func (c *requestContext) RotateSession() error {
	if c.session == nil {
		return errors.New("kiln: sessions are not configured")
	}
	token, err := c.srv.sessions.newToken()
	if err != nil {
		return err
	}
	c.session.Rotate(token)
	return nil
}

func (c *requestContext) DestroySession() {
	if c.session == nil {
		return
	}
	c.sessionDestroyed = true
}

func (c *requestContext) Files() []*UploadedFile {
	return c.files
}

func (c *requestContext) File(field string) (*UploadedFile, bool) {
	for _, f := range c.files {
		if f.FieldName() == field {
			return f, true
		}
	}
	return nil, false
}

func (c *requestContext) HasFiles() bool {
	return len(c.files) > 0
}

func (c *requestContext) Set(key, value any) {
	c.request = c.request.WithContext(context.WithValue(c.request.Context(), key, value))
}

func (c *requestContext) Get(key any) any {
	return c.request.Context().Value(key)
}

func (c *requestContext) Logger() *slog.Logger {
	return c.srv.logger
}

func (c *requestContext) LogDebug(msg string, attrs ...any) {
	c.srv.logger.DebugContext(c.request.Context(), msg, attrs...)
}

func (c *requestContext) LogInfo(msg string, attrs ...any) {
	c.srv.logger.InfoContext(c.request.Context(), msg, attrs...)
}

func (c *requestContext) LogWarn(msg string, attrs ...any) {
	c.srv.logger.WarnContext(c.request.Context(), msg, attrs...)
}

func (c *requestContext) LogError(msg string, attrs ...any) {
	c.srv.logger.ErrorContext(c.request.Context(), msg, attrs...)
}

// RequestIDExtractor adds the request id to log records.
func RequestIDExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		c, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return slog.String("request_id", c.ID()), true
	}
}

// UserIDExtractor adds the authorised user id to log records.
func UserIDExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		c, ok := FromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		u := c.User()
		if u == nil {
			return slog.Attr{}, false
		}
		return slog.String("user_id", u.AuthID()), true
	}
}
