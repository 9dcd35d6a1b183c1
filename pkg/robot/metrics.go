package robot

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors shared by all arms of a process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commandsSent *prometheus.CounterVec
	replies      *prometheus.CounterVec
	linkErrors   *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armlink_commands_sent_total",
				Help: "Commands written to the controller link",
			},
			[]string{"arm", "kind"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armlink_replies_total",
				Help: "Reply lines received from the controller, by decoded kind",
			},
			[]string{"arm", "kind"},
		),
		linkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armlink_link_errors_total",
				Help: "Write, read and decode failures on the controller link",
			},
			[]string{"arm", "kind"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "armlink_queue_depth",
				Help: "Commands waiting to be dispatched",
			},
			[]string{"arm"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commandsSent, m.replies, m.linkErrors, m.queueDepth)
	}
	return m
}

func (m *Metrics) commandSent(arm, kind string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(arm, kind).Inc()
}

func (m *Metrics) reply(arm, kind string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(arm, kind).Inc()
}

func (m *Metrics) linkError(arm, kind string) {
	if m == nil {
		return
	}
	m.linkErrors.WithLabelValues(arm, kind).Inc()
}

func (m *Metrics) setQueueDepth(arm string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(arm).Set(float64(n))
}
