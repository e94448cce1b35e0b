package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/matst80/warppipe/internal/obs"
	"github.com/matst80/warppipe/internal/pipe"
	"github.com/matst80/warppipe/internal/proto"
	"github.com/matst80/warppipe/internal/ratelimit"
)

const handshakeTimeout = 5 * time.Second

// controlWriteMu serializes frames onto the control connection; player
// handlers and the heartbeat ack path write concurrently.
var controlWriteMu sync.Mutex

func acceptPlayers(ctx context.Context, ln net.Listener, store SessionStore, limiter *ratelimit.Limiter, awaitTimeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				obs.Error("accept.player.timeout", obs.Fields{"err": err.Error()})
				continue
			}
			return
		}
		go handlePlayer(c, store, limiter, awaitTimeout)
	}
}

func handlePlayer(c net.Conn, store SessionStore, limiter *ratelimit.Limiter, awaitTimeout time.Duration) {
	remoteIP, _, err := net.SplitHostPort(c.RemoteAddr().String())
	if err != nil {
		remoteIP = c.RemoteAddr().String()
	}
	if !limiter.Allow(remoteIP) {
		obs.Debug("player.rate_limited", obs.Fields{"remote": remoteIP})
		obs.ErrorsTotal.WithLabelValues("rate_limited").Inc()
		_ = c.Close()
		return
	}

	ctrl := store.controlConn()
	if ctrl == nil {
		// No forwarder attached; nothing to queue the player on.
		obs.Debug("player.no_control", obs.Fields{"remote": remoteIP})
		obs.ErrorsTotal.WithLabelValues("no_control").Inc()
		_ = c.Close()
		return
	}

	id, err := sessionID()
	if err != nil {
		obs.Error("player.session_id", obs.Fields{"err": err.Error()})
		_ = c.Close()
		return
	}
	sess := newSession(id, c)
	if err := store.addSession(sess); err != nil {
		obs.Error("player.add_session", obs.Fields{"err": err.Error(), "id": id})
		_ = c.Close()
		return
	}
	obs.Debug("player.accepted", obs.Fields{"id": id, "remote": remoteIP})

	controlWriteMu.Lock()
	err = proto.Write(ctrl, proto.NewSession(id))
	controlWriteMu.Unlock()
	if err != nil {
		obs.Error("control.notify", obs.Fields{"err": err.Error(), "id": id})
		obs.ErrorsTotal.WithLabelValues("control_notify").Inc()
		store.dropControl(ctrl)
		_ = ctrl.Close()
		if store.expire(id) != nil {
			_ = c.Close()
		}
		return
	}

	select {
	case <-sess.ready:
		// Bound; the data handler owns both sockets now.
	case <-time.After(awaitTimeout):
		if store.expire(id) != nil {
			obs.Error("player.await_timeout", obs.Fields{"id": id})
			obs.SessionTimeoutTotal.Inc()
			obs.ErrorsTotal.WithLabelValues("await_timeout").Inc()
			_ = c.Close()
		}
	}
}

func acceptAux(ctx context.Context, ln net.Listener, store SessionStore) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				obs.Error("accept.aux.timeout", obs.Fields{"err": err.Error()})
				continue
			}
			return
		}
		go handleAux(c, store)
	}
}

// handleAux demuxes a fresh auxiliary connection by its first frame:
// ControlHello claims the control role, DataHello binds a pending session.
func handleAux(c net.Conn, store SessionStore) {
	_ = c.SetReadDeadline(time.Now().Add(handshakeTimeout))
	f, err := proto.Read(c)
	if err != nil {
		obs.Error("aux.handshake.read", obs.Fields{"err": err.Error(), "remote": c.RemoteAddr().String()})
		obs.ErrorsTotal.WithLabelValues("handshake_read").Inc()
		_ = c.Close()
		return
	}
	_ = c.SetReadDeadline(time.Time{})

	switch f.Kind {
	case proto.KindControlHello:
		if string(f.Payload) != proto.ControlMagic {
			obs.Error("aux.handshake.magic", obs.Fields{"remote": c.RemoteAddr().String()})
			obs.ErrorsTotal.WithLabelValues("bad_magic").Inc()
			_ = c.Close()
			return
		}
		handleControl(c, store)
	case proto.KindDataHello:
		handleData(c, store, string(f.Payload))
	default:
		obs.Error("aux.handshake.kind", obs.Fields{"kind": f.Kind.String(), "remote": c.RemoteAddr().String()})
		obs.ErrorsTotal.WithLabelValues("bad_handshake").Inc()
		_ = c.Close()
	}
}

// handleControl owns the control channel until it errors. A reconnecting
// forwarder displaces the previous channel; heartbeats in flight on the old
// one die with its socket.
func handleControl(c net.Conn, store SessionStore) {
	if displaced := store.setControl(c); displaced != nil {
		obs.Info("control.replaced", obs.Fields{"old": displaced.RemoteAddr().String(), "new": c.RemoteAddr().String()})
		obs.ControlReplacedTotal.Inc()
		_ = displaced.Close()
	}
	obs.Info("control.attached", obs.Fields{"remote": c.RemoteAddr().String()})

	for {
		f, err := proto.Read(c)
		if err != nil {
			closed := store.dropControl(c)
			obs.Info("control.detached", obs.Fields{"err": err.Error(), "orphaned": closed})
			_ = c.Close()
			return
		}
		switch f.Kind {
		case proto.KindHeartbeat:
			controlWriteMu.Lock()
			err := proto.Write(c, proto.HeartbeatAck())
			controlWriteMu.Unlock()
			if err != nil {
				closed := store.dropControl(c)
				obs.Info("control.detached", obs.Fields{"err": err.Error(), "orphaned": closed})
				_ = c.Close()
				return
			}
		default:
			obs.Debug("control.ignored_frame", obs.Fields{"kind": f.Kind.String()})
		}
	}
}

// handleData binds a forwarder data connection to its awaiting session and
// runs the pipe pair to completion.
func handleData(c net.Conn, store SessionStore, id string) {
	sess := store.bind(id, c)
	if sess == nil {
		// Unknown, expired, or already bound: a stale or duplicate data
		// connection. Protocol anomaly, not fatal.
		obs.Error("data.stale_session", obs.Fields{"id": id, "remote": c.RemoteAddr().String()})
		obs.ErrorsTotal.WithLabelValues("stale_session").Inc()
		_ = c.Close()
		return
	}
	close(sess.ready)
	obs.Info("session.established", obs.Fields{"id": id})
	obs.SessionEstablishedTotal.Inc()

	start := time.Now()
	fromPlayer, toPlayer := pipe.Join(sess.player, c)
	store.finish(id)
	obs.SessionDurationSeconds.Observe(time.Since(start).Seconds())
	obs.RelayedBytesTotal.WithLabelValues("player_to_game").Add(float64(fromPlayer))
	obs.RelayedBytesTotal.WithLabelValues("game_to_player").Add(float64(toPlayer))
	obs.Info("session.closed", obs.Fields{"id": id, "player_to_game": fromPlayer, "game_to_player": toPlayer})
}

func runSweepLoop(ctx context.Context, store SessionStore, limiter *ratelimit.Limiter, interval, maxAge time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			store.evictExpired(maxAge)
			return
		case <-t.C:
			if evicted := store.evictExpired(maxAge); evicted > 0 {
				obs.Info("sweep.evicted", obs.Fields{"count": evicted})
			}
			limiter.Cleanup(10 * time.Minute)
		}
	}
}

// sessionID returns 8 crypto-random bytes hex encoded.
func sessionID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
