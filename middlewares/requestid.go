package middlewares

import "github.com/kilnhq/kiln/internal"

// DefaultRequestIDHeader is the response header RequestID writes.
const DefaultRequestIDHeader = "X-Request-ID"

// RequestID returns middleware that sets the request id as a response header.
// An empty header name uses DefaultRequestIDHeader.
func RequestID(header string) internal.Middleware {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return func(c internal.Context) error {
		c.SetHeader(header, c.ID())
		return nil
	}
}
