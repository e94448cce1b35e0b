package main

import "time"

// Stats is the relay state snapshot served on the metrics listener.
type Stats struct {
	Pending       int    `json:"pending"`
	Active        int    `json:"active"`
	TotalSessions int64  `json:"total_sessions"`
	Timeouts      int64  `json:"timeouts"`
	Now           string `json:"now"`
}

func collectStats(s SessionStore) Stats {
	pending, active, total, timeouts := s.getStats()
	return Stats{
		Pending:       pending,
		Active:        active,
		TotalSessions: total,
		Timeouts:      timeouts,
		Now:           time.Now().UTC().Format(time.RFC3339),
	}
}
