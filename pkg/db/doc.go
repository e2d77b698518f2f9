// Package db opens PostgreSQL pools and applies goose migrations.
//
// It backs session.PostgresStore. Configuration loads from the environment
// with caarlos0/env:
//
//	var cfg db.Config
//	if err := env.Parse(&cfg); err != nil { ... }
//	pool, err := db.Connect(ctx, cfg)
//
// Healthcheck plugs into the readiness probe and Shutdown into the server's
// shutdown hooks.
package db
