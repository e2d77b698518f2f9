// Package health serves liveness and readiness probes.
//
// Liveness always answers OK while the process runs. Readiness runs every
// registered check concurrently under a shared timeout and answers 503 when
// any of them fails. Clients that send Accept: application/json (or
// ?format=json) get a per-check breakdown:
//
//	{"status":"unhealthy","checks":{"redis":{"status":"unhealthy","error":"..."}}}
//
// The kiln health plugin mounts both handlers under /health.
package health
