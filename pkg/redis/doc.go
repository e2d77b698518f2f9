// Package redis opens go-redis clients for the session store.
//
//	var cfg redis.Config
//	_ = env.Parse(&cfg)
//	client, err := redis.Open(ctx, cfg)
//	store := session.NewRedisStore(client)
package redis
