// Package metrics holds the Prometheus collectors exported by the messaging
// engine. A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	messagesCreated prometheus.Counter
	edits           *prometheus.CounterVec
	notifications   prometheus.Counter
	markedRead      prometheus.Counter
	purges          prometheus.Counter
	gateDenials     *prometheus.CounterVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_messages_created_total",
			Help: "Messages committed by CreateMessage.",
		}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_message_edits_total",
			Help: "EditMessage calls by outcome (changed, unchanged, conflict).",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_notifications_emitted_total",
			Help: "Notifications written by the creation fanout.",
		}),
		markedRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_messages_marked_read_total",
			Help: "Rows transitioned from unread to read.",
		}),
		purges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_user_purges_total",
			Help: "Completed DeleteUserData cascades.",
		}),
		gateDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messaging_gate_denials_total",
			Help: "Requests rejected by the request gate, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.messagesCreated, m.edits, m.notifications, m.markedRead, m.purges, m.gateDenials)
	}
	return m
}

func (m *Metrics) MessageCreated() {
	if m == nil {
		return
	}
	m.messagesCreated.Inc()
}

func (m *Metrics) MessageEdited(outcome string) {
	if m == nil {
		return
	}
	m.edits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationEmitted() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

func (m *Metrics) MarkedRead(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.markedRead.Add(float64(n))
}

func (m *Metrics) UserPurged() {
	if m == nil {
		return
	}
	m.purges.Inc()
}

func (m *Metrics) GateDenied(reason string) {
	if m == nil {
		return
	}
	m.gateDenials.WithLabelValues(reason).Inc()
}
