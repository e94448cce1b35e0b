package main

import (
	"net"
	"time"
)

type sessionState int

const (
	stateAwaiting sessionState = iota // player accepted, waiting for forwarder data conn
	stateActive                       // data conn bound, pipes running
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaiting:
		return "awaiting_data"
	case stateActive:
		return "active"
	}
	return "closed"
}

// session is one player's end-to-end path. Owned by the relay; the
// forwarder only ever sees the id.
type session struct {
	id         string
	state      sessionState
	player     net.Conn
	data       net.Conn // nil until bound
	created    time.Time
	lastActive time.Time
	ready      chan struct{} // closed when the data connection is bound
}

func newSession(id string, player net.Conn) *session {
	now := time.Now()
	return &session{
		id:         id,
		state:      stateAwaiting,
		player:     player,
		created:    now,
		lastActive: now,
		ready:      make(chan struct{}),
	}
}
