// Package plugins holds the plugins that ship with kiln.
//
//	srv := kiln.New(kiln.WithPlugins(
//	    plugins.SecurityHeaders(),
//	    plugins.Health(health.Checks{"redis": redis.Healthcheck(rdb)}),
//	    plugins.Metrics(prometheus.DefaultGatherer),
//	))
package plugins
