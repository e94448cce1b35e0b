package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ControlConnected        = promauto.NewGauge(prometheus.GaugeOpts{Name: "warppipe_control_connected", Help: "1 when a forwarder control channel is attached"})
	PendingSessions         = promauto.NewGauge(prometheus.GaugeOpts{Name: "warppipe_pending_sessions", Help: "Sessions awaiting a forwarder data connection"})
	ActiveSessions          = promauto.NewGauge(prometheus.GaugeOpts{Name: "warppipe_active_sessions", Help: "Sessions currently relaying bytes"})
	SessionEstablishedTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "warppipe_session_established_total", Help: "Sessions bound to a data connection"})
	SessionTimeoutTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "warppipe_session_timeout_total", Help: "Sessions evicted before a data connection arrived"})
	ControlReplacedTotal    = promauto.NewCounter(prometheus.CounterOpts{Name: "warppipe_control_replaced_total", Help: "Control channels displaced by a forwarder reconnect"})
	ErrorsTotal             = promauto.NewCounterVec(prometheus.CounterOpts{Name: "warppipe_errors_total", Help: "Errors by type"}, []string{"type"})
	SessionDurationSeconds  = promauto.NewHistogram(prometheus.HistogramOpts{Name: "warppipe_session_duration_seconds", Help: "Session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
	RelayedBytesTotal       = promauto.NewCounterVec(prometheus.CounterOpts{Name: "warppipe_relayed_bytes_total", Help: "Bytes relayed by direction"}, []string{"direction"})
)
