package main

import "github.com/matst80/warppipe/internal/obs"

// newSessionStore creates the in-memory table or its Redis-mirrored
// variant based on configuration.
func newSessionStore(redisAddr, redisPassword string, redisDB int) (SessionStore, error) {
	if redisAddr == "" {
		obs.Info("state.backend", obs.Fields{"type": "in-memory"})
		return newMemoryStore(), nil
	}
	obs.Info("state.backend", obs.Fields{"type": "redis", "addr": redisAddr})
	return newRedisStore(redisAddr, redisPassword, redisDB)
}
