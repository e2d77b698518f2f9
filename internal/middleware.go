package internal

// HandlerFunc handles a routed request.
type HandlerFunc func(c Context) error

// Middleware runs before a handler. Returning an error aborts the chain and
// the handler; writing a response ends the chain without an error.
type Middleware func(c Context) error

// runChain invokes mws in order and stops at the first error or once a
// response has been written.
func runChain(c Context, mws []Middleware) error {
	for _, mw := range mws {
		if err := mw(c); err != nil {
			return err
		}
		if c.Written() {
			return nil
		}
	}
	return nil
}
