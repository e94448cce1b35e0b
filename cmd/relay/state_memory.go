package main

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/matst80/warppipe/internal/obs"
)

// memoryStore is the default single-instance session table. One mutex
// guards the whole table; the accept path, the bind path, and the sweep all
// contend on it.
type memoryStore struct {
	mu       sync.Mutex
	control  net.Conn
	sessions map[string]*session
	closing  bool
	ready    bool
	total    int64
	timeouts int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*session)}
}

var _ SessionStore = (*memoryStore)(nil)

func (m *memoryStore) setControl(c net.Conn) net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	displaced := m.control
	m.control = c
	obs.ControlConnected.Set(1)
	return displaced
}

func (m *memoryStore) dropControl(c net.Conn) int {
	m.mu.Lock()
	if m.control != c {
		m.mu.Unlock()
		return 0
	}
	m.control = nil
	var orphaned []*session
	for id, s := range m.sessions {
		if s.state == stateAwaiting {
			s.state = stateClosed
			delete(m.sessions, id)
			orphaned = append(orphaned, s)
		}
	}
	m.timeouts += int64(len(orphaned))
	pending := m.countPendingLocked()
	m.mu.Unlock()

	obs.ControlConnected.Set(0)
	obs.PendingSessions.Set(float64(pending))
	for _, s := range orphaned {
		_ = s.player.Close()
		obs.SessionTimeoutTotal.Inc()
	}
	return len(orphaned)
}

func (m *memoryStore) controlConn() net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.control
}

func (m *memoryStore) addSession(s *session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.id]; exists {
		return fmt.Errorf("session id collision: %s", s.id)
	}
	m.sessions[s.id] = s
	obs.PendingSessions.Set(float64(m.countPendingLocked()))
	return nil
}

func (m *memoryStore) bind(id string, data net.Conn) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil || s.state != stateAwaiting {
		return nil
	}
	s.state = stateActive
	s.data = data
	s.lastActive = time.Now()
	m.total++
	obs.PendingSessions.Set(float64(m.countPendingLocked()))
	obs.ActiveSessions.Set(float64(m.countActiveLocked()))
	return s
}

func (m *memoryStore) expire(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	if s == nil || s.state != stateAwaiting {
		return nil
	}
	s.state = stateClosed
	delete(m.sessions, id)
	m.timeouts++
	obs.PendingSessions.Set(float64(m.countPendingLocked()))
	return s
}

func (m *memoryStore) finish(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[id]; s != nil {
		s.state = stateClosed
		delete(m.sessions, id)
	}
	obs.ActiveSessions.Set(float64(m.countActiveLocked()))
}

func (m *memoryStore) evictExpired(maxAge time.Duration) int {
	var expired []*session
	m.mu.Lock()
	if m.closing {
		for id, s := range m.sessions {
			if s.state == stateAwaiting {
				s.state = stateClosed
				delete(m.sessions, id)
				expired = append(expired, s)
			}
		}
	} else {
		cutoff := time.Now().Add(-maxAge)
		for id, s := range m.sessions {
			if s.state == stateAwaiting && s.created.Before(cutoff) {
				s.state = stateClosed
				delete(m.sessions, id)
				expired = append(expired, s)
			}
		}
	}
	m.timeouts += int64(len(expired))
	pending := m.countPendingLocked()
	m.mu.Unlock()

	obs.PendingSessions.Set(float64(pending))
	for _, s := range expired {
		_ = s.player.Close()
		obs.SessionTimeoutTotal.Inc()
	}
	return len(expired)
}

func (m *memoryStore) setClosing(v bool) { m.mu.Lock(); m.closing = v; m.mu.Unlock() }
func (m *memoryStore) setReady(v bool)   { m.mu.Lock(); m.ready = v; m.mu.Unlock() }
func (m *memoryStore) isClosing() bool   { m.mu.Lock(); defer m.mu.Unlock(); return m.closing }
func (m *memoryStore) isReady() bool     { m.mu.Lock(); defer m.mu.Unlock(); return m.ready }

func (m *memoryStore) getStats() (int, int, int64, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countPendingLocked(), m.countActiveLocked(), m.total, m.timeouts
}

func (m *memoryStore) countPendingLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.state == stateAwaiting {
			n++
		}
	}
	return n
}

func (m *memoryStore) countActiveLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.state == stateActive {
			n++
		}
	}
	return n
}
