// Package metrics exposes protocol events as Prometheus metrics.
//
// Collector implements log.Logger, so it can be combined with other
// protocol loggers through log.NewMultiLogger:
//
//	reg := prometheus.NewRegistry()
//	cfg.ProtocolLogger = log.NewMultiLogger(fileLogger, metrics.NewCollector(reg))
//
// Metrics collected:
//   - m2m_messages_total: messages by direction, operation, kind and status
//   - m2m_request_duration_seconds: request round trip by operation
//   - m2m_frame_bytes_total: framed bytes by direction
//   - m2m_state_transitions_total: connection and session transitions
//   - m2m_session_state: 1 for the current session state, 0 otherwise
//   - m2m_block_events_total and m2m_block_bytes_total: block transfers by outcome
//   - m2m_errors_total: errors by layer
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mash-protocol/m2m-client/pkg/log"
)

// Namespace prefixes all metric names.
const Namespace = "m2m"

// Config configures a Collector.
type Config struct {
	// Registry receives the collectors. Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// ConstLabels are added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets for the round trip histogram. Default: prometheus.DefBuckets.
	Buckets []float64
}

// Collector turns protocol events into metrics.
type Collector struct {
	messages     *prometheus.CounterVec
	roundTrip    *prometheus.HistogramVec
	frameBytes   *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	sessionState *prometheus.GaugeVec
	blockEvents  *prometheus.CounterVec
	blockBytes   *prometheus.CounterVec
	errors       *prometheus.CounterVec

	mu        sync.Mutex
	lastState string
}

// NewCollector registers the collectors with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(Config{Registry: reg})
}

// NewCollectorWithConfig registers the collectors described by cfg.
func NewCollectorWithConfig(cfg Config) *Collector {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "messages_total",
			Help:        "Protocol messages sent and received",
			ConstLabels: cfg.ConstLabels,
		}, []string{"direction", "operation", "kind", "status"}),

		roundTrip: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   Namespace,
			Name:        "request_duration_seconds",
			Help:        "Time from request to matching response",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"operation"}),

		frameBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "frame_bytes_total",
			Help:        "Framed bytes on the transport, including length prefixes",
			ConstLabels: cfg.ConstLabels,
		}, []string{"direction"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "state_transitions_total",
			Help:        "Connection and session state transitions by new state",
			ConstLabels: cfg.ConstLabels,
		}, []string{"entity", "state"}),

		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "session_state",
			Help:        "Current registration session state",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),

		blockEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "block_events_total",
			Help:        "Blocks handled by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),

		blockBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "block_bytes_total",
			Help:        "Block payload bytes by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "errors_total",
			Help:        "Protocol errors by layer",
			ConstLabels: cfg.ConstLabels,
		}, []string{"layer"}),
	}
}

// Log implements log.Logger.
func (c *Collector) Log(e log.Event) {
	switch {
	case e.Frame != nil:
		c.frameBytes.WithLabelValues(e.Direction.String()).Add(float64(e.Frame.Size))

	case e.Message != nil:
		m := e.Message
		kind, status := "request", ""
		if m.Response {
			kind = "response"
			if m.Status != nil {
				status = m.Status.String()
			}
		}
		op := m.Operation.String()
		c.messages.WithLabelValues(e.Direction.String(), op, kind, status).Inc()
		if m.RoundTrip != nil {
			c.roundTrip.WithLabelValues(op).Observe(m.RoundTrip.Seconds())
		}

	case e.StateChange != nil:
		sc := e.StateChange
		c.transitions.WithLabelValues(sc.Entity.String(), sc.NewState).Inc()
		if sc.Entity == log.StateEntitySession {
			c.setSessionState(sc.NewState)
		}

	case e.Block != nil:
		outcome := e.Block.Outcome.String()
		c.blockEvents.WithLabelValues(outcome).Inc()
		c.blockBytes.WithLabelValues(outcome).Add(float64(e.Block.Length))

	case e.Error != nil:
		c.errors.WithLabelValues(e.Error.Layer.String()).Inc()
	}
}

func (c *Collector) setSessionState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastState != "" && c.lastState != state {
		c.sessionState.WithLabelValues(c.lastState).Set(0)
	}
	c.sessionState.WithLabelValues(state).Set(1)
	c.lastState = state
}

var _ log.Logger = (*Collector)(nil)
