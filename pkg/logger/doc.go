// Package logger builds the slog.Logger used across kiln.
//
// Output goes to stdout, to a rotating file (lumberjack) or both, in JSON or
// text. Records at or above the Sentry level are forwarded to Sentry when a
// DSN is set. ContextExtractor functions pull request-scoped attributes (such
// as the request id) out of the context on every call:
//
//	log := logger.New(logger.Config{Level: "debug"}, kiln.RequestIDExtractor())
//	log.InfoContext(ctx, "user created", "user_id", id)
package logger
