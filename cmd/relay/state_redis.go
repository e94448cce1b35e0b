package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/matst80/warppipe/internal/obs"
	"github.com/redis/go-redis/v9"
)

// sessionData is the JSON form mirrored to Redis (sans conns).
type sessionData struct {
	ID      string    `json:"id"`
	State   string    `json:"state"`
	Created time.Time `json:"created"`
}

// redisStore mirrors session lifecycle events into Redis so a fleet of
// relays is observable from one place. The authoritative table (and every
// net.Conn) stays in the embedded local store; Redis keys are ephemeral
// live state with TTLs, nothing is read back on restart.
type redisStore struct {
	local      *memoryStore
	client     *redis.Client
	instanceID string
	keyTTL     time.Duration
}

func newRedisStore(addr, password string, db int) (*redisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &redisStore{
		local:      newMemoryStore(),
		client:     rdb,
		instanceID: fmt.Sprintf("warppipe-%d", time.Now().UnixNano()),
		keyTTL:     time.Hour,
	}, nil
}

var _ SessionStore = (*redisStore)(nil)

func (r *redisStore) sessionKey(id string) string { return "session:" + id }

func (r *redisStore) mirror(s *session, state sessionState) {
	ctx := context.Background()
	data, err := json.Marshal(sessionData{ID: s.id, State: state.String(), Created: s.created})
	if err != nil {
		obs.Error("redis.mirror.marshal", obs.Fields{"err": err.Error(), "id": s.id})
		return
	}
	if err := r.client.Set(ctx, r.sessionKey(s.id), data, r.keyTTL).Err(); err != nil {
		obs.Error("redis.mirror.set", obs.Fields{"err": err.Error(), "id": s.id})
	}
}

func (r *redisStore) unmirror(id string) {
	if err := r.client.Del(context.Background(), r.sessionKey(id)).Err(); err != nil {
		obs.Error("redis.mirror.del", obs.Fields{"err": err.Error(), "id": id})
	}
}

func (r *redisStore) setControl(c net.Conn) net.Conn {
	if err := r.client.Set(context.Background(), "relay:"+r.instanceID+":control", c.RemoteAddr().String(), r.keyTTL).Err(); err != nil {
		obs.Error("redis.control.set", obs.Fields{"err": err.Error()})
	}
	return r.local.setControl(c)
}

func (r *redisStore) dropControl(c net.Conn) int {
	closed := r.local.dropControl(c)
	if r.local.controlConn() == nil {
		if err := r.client.Del(context.Background(), "relay:"+r.instanceID+":control").Err(); err != nil {
			obs.Error("redis.control.del", obs.Fields{"err": err.Error()})
		}
	}
	return closed
}

func (r *redisStore) controlConn() net.Conn { return r.local.controlConn() }

func (r *redisStore) addSession(s *session) error {
	if err := r.local.addSession(s); err != nil {
		return err
	}
	r.mirror(s, stateAwaiting)
	return nil
}

func (r *redisStore) bind(id string, data net.Conn) *session {
	s := r.local.bind(id, data)
	if s != nil {
		r.mirror(s, stateActive)
	}
	return s
}

func (r *redisStore) expire(id string) *session {
	s := r.local.expire(id)
	if s != nil {
		r.unmirror(id)
	}
	return s
}

func (r *redisStore) finish(id string) {
	r.local.finish(id)
	r.unmirror(id)
}

func (r *redisStore) evictExpired(maxAge time.Duration) int {
	// The local sweep drops the map entries; mirrored keys fall out on TTL.
	return r.local.evictExpired(maxAge)
}

func (r *redisStore) setClosing(v bool) { r.local.setClosing(v) }
func (r *redisStore) setReady(v bool)   { r.local.setReady(v) }
func (r *redisStore) isClosing() bool   { return r.local.isClosing() }
func (r *redisStore) isReady() bool     { return r.local.isReady() }

func (r *redisStore) getStats() (int, int, int64, int64) { return r.local.getStats() }

// startMaintenance keeps the instance key alive so dead relays disappear
// from the fleet view once their TTL lapses.
func (r *redisStore) startMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, active, total, timeouts := r.getStats()
			data, err := json.Marshal(map[string]any{
				"pending": pending, "active": active,
				"total": total, "timeouts": timeouts,
				"seen": time.Now().UTC(),
			})
			if err != nil {
				continue
			}
			if err := r.client.Set(ctx, "relay:"+r.instanceID, data, r.keyTTL).Err(); err != nil {
				obs.Error("redis.maintenance.set", obs.Fields{"err": err.Error()})
			}
		}
	}
}
