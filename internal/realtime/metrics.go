package realtime

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danhigham/huddle/internal/domain"
)

const namespace = "huddle"

// Peer message routes.
const (
	routeActive       = "active"
	routeNotification = "notification"
	routeDuplicate    = "duplicate"
	routeOwn          = "own"
)

type metrics struct {
	peerMessages   *prometheus.CounterVec
	typingEmits    *prometheus.CounterVec
	sends          *prometheus.CounterVec
	staleHistories prometheus.Counter
	sessionEnds    prometheus.Counter
	connState      prometheus.Gauge
}

// newMetrics builds the manager's collectors and registers them with reg
// when it is non-nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		peerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "peer_messages_total",
			Help:      "Inbound peer messages by where they were routed.",
		}, []string{"route"}),
		typingEmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "typing_emits_total",
			Help:      "Typing signals emitted on the transport.",
		}, []string{"signal"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "sends_total",
			Help:      "Outgoing messages by result.",
		}, []string{"result"}),
		staleHistories: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "stale_histories_total",
			Help:      "History fetches discarded because the selection changed.",
		}),
		sessionEnds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "forced_logouts_total",
			Help:      "Sessions torn down after an unauthorized response.",
		}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.peerMessages, m.typingEmits, m.sends, m.staleHistories, m.sessionEnds, m.connState)
	}
	return m
}

func (m *metrics) setConnState(s domain.ConnState) {
	m.connState.Set(float64(s))
}
