// Package config is the configuration repository read by the server and by
// application code.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file,
// a .env file, then KILN_* environment variables. A double underscore in a
// variable name marks nesting, so KILN_SERVER__PORT sets server.port.
//
//	repo, err := config.Load(config.WithFile("conf/kiln.yaml"))
//	port := repo.Int("server.port", 3000)
//	srv, err := config.LoadServer(repo)
package config
