package main

import (
	"net"
	"time"
)

// SessionStore abstracts relay state so a Redis mirror can sit behind the
// same accept paths as the in-memory table.
type SessionStore interface {
	// Control channel registration. setControl returns the displaced
	// previous connection (to be closed by the caller) if any.
	setControl(c net.Conn) (displaced net.Conn)
	// dropControl clears the registration if c is still current and closes
	// every session still awaiting a data connection; returns how many it
	// closed. A stale c (already replaced) is a no-op.
	dropControl(c net.Conn) int
	controlConn() net.Conn

	addSession(s *session) error
	// bind atomically transitions id from awaiting to active, attaching the
	// data connection. Returns nil for an unknown, expired, or already
	// bound id.
	bind(id string, data net.Conn) *session
	// expire removes id if it is still awaiting and returns it, else nil.
	expire(id string) *session
	// finish removes an active session whose pipes have ended.
	finish(id string)
	// evictExpired removes awaiting sessions older than maxAge (all of them
	// when closing), closing their player sockets.
	evictExpired(maxAge time.Duration) int

	setClosing(bool)
	setReady(bool)
	isClosing() bool
	isReady() bool

	getStats() (pending int, active int, total int64, timeouts int64)
}
