// Package session defines the server-side session model and its stores.
//
// A request gets a Session when session support is configured. Changes are
// tracked with a dirty flag and written back once, after the response has
// been sent. Untouched new sessions are never stored.
//
// Three stores ship with the package: MemoryStore, RedisStore (go-redis) and
// PostgresStore (pgx, migrated with goose).
package session
