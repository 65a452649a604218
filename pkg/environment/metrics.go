package environment

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors an Environment updates.
type Metrics struct {
	Turns            prometheus.Counter
	TurnDuration     prometheus.Histogram
	Dispatches       *prometheus.CounterVec
	Faults           *prometheus.CounterVec
	MessagesSent     prometheus.Counter
	MessagesDropped  prometheus.Counter
	AgentsRegistered prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "turns_total",
			Help:      "Total number of completed turns",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "turn_duration_seconds",
			Help:      "Turn duration in seconds, excluding the end of turn delay",
			Buckets:   prometheus.DefBuckets,
		}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "dispatches_total",
			Help:      "Total number of agent dispatches by kind",
		}, []string{"kind"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "agent_faults_total",
			Help:      "Total number of recovered agent faults by phase",
		}, []string{"phase"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered to a mailbox",
		}),
		MessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped for an unknown receiver",
		}),
		AgentsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "colony",
			Subsystem: "environment",
			Name:      "agents_registered",
			Help:      "Number of currently registered agents",
		}),
	}

	var err error
	if m.Turns, err = register(reg, m.Turns); err != nil {
		return nil, err
	}
	if m.TurnDuration, err = register(reg, m.TurnDuration); err != nil {
		return nil, err
	}
	if m.Dispatches, err = register(reg, m.Dispatches); err != nil {
		return nil, err
	}
	if m.Faults, err = register(reg, m.Faults); err != nil {
		return nil, err
	}
	if m.MessagesSent, err = register(reg, m.MessagesSent); err != nil {
		return nil, err
	}
	if m.MessagesDropped, err = register(reg, m.MessagesDropped); err != nil {
		return nil, err
	}
	if m.AgentsRegistered, err = register(reg, m.AgentsRegistered); err != nil {
		return nil, err
	}
	return m, nil
}

// register reuses an identical collector when several environments share a
// registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
