// Package tpmetrics adapts the Transport Protocol engine's MetricsReporter
// interface onto Prometheus, for production CAN/DC monitoring.
package tpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/gotpd/internal/tp"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "gotpd"
	subsystem = "tp"
)

// Label names for TP metrics.
const (
	labelRole    = "role"
	labelOutcome = "outcome"
	labelFrame   = "frame"
	labelFrom    = "from_state"
	labelTo      = "to_state"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Transport Protocol Metrics
// -------------------------------------------------------------------------

// Collector holds all Transport Protocol Prometheus metrics and implements
// tp.MetricsReporter.
//
//   - Sessions tracks currently active sessions per role.
//   - SessionsTerminated counts completed sessions per role and outcome.
//   - FramesSent/FramesDropped track wire activity.
//   - StateTransitions counts FSM changes for alerting.
type Collector struct {
	Sessions           *prometheus.GaugeVec
	SessionsTerminated *prometheus.CounterVec
	FramesSent         *prometheus.CounterVec
	FramesDropped      prometheus.Counter
	StateTransitions   *prometheus.CounterVec
}

// NewCollector creates a Collector with all TP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.SessionsTerminated,
		c.FramesSent,
		c.FramesDropped,
		c.StateTransitions,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently active Transport Protocol sessions.",
		}, []string{labelRole}),

		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_terminated_total",
			Help:      "Total Transport Protocol sessions terminated, by role and outcome.",
		}, []string{labelRole, labelOutcome}),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total TP.CM/TP.DT frames transmitted, by frame kind.",
		}, []string{labelFrame}),

		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total inbound TP.CM frames dropped for an unknown control byte; frames with no matching session are not counted.",
		}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total session FSM state transitions.",
		}, []string{labelRole, labelFrom, labelTo}),
	}
}

// -------------------------------------------------------------------------
// tp.MetricsReporter
// -------------------------------------------------------------------------

// SessionCreated implements tp.MetricsReporter.
func (c *Collector) SessionCreated(role tp.Role) {
	c.Sessions.WithLabelValues(role.String()).Inc()
}

// SessionTerminated implements tp.MetricsReporter.
func (c *Collector) SessionTerminated(role tp.Role, outcome tp.Outcome) {
	c.Sessions.WithLabelValues(role.String()).Dec()
	c.SessionsTerminated.WithLabelValues(role.String(), outcome.String()).Inc()
}

// StateTransition implements tp.MetricsReporter.
func (c *Collector) StateTransition(role tp.Role, from, to tp.State) {
	c.StateTransitions.WithLabelValues(role.String(), from.String(), to.String()).Inc()
}

// FrameSent implements tp.MetricsReporter.
func (c *Collector) FrameSent(kind string) {
	c.FramesSent.WithLabelValues(kind).Inc()
}

// FrameDropped implements tp.MetricsReporter.
func (c *Collector) FrameDropped() {
	c.FramesDropped.Inc()
}

var _ tp.MetricsReporter = (*Collector)(nil)
