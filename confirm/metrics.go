package confirm

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "confirmer"

// reasons messages are dropped for
const (
	dropMalformed    = "malformed"
	dropVerification = "verification"
	dropValue        = "value_mismatch"
	dropDuplicate    = "duplicate"
)

// Metrics counts the Confirmer's protocol activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	confirmations prometheus.Counter
	aborts        prometheus.Counter
}

// NewMetrics instantiates Metrics and registers them with the Registerer.
// Collectors already registered by another instance are reused, so multiple Confirmers in
// one process share counters.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_delivered_total",
			Help:      "number of protocol messages delivered, by kind",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_dropped_total",
			Help:      "number of protocol messages dropped, by reason",
		}, []string{"reason"}),
		confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "confirmations_total",
			Help:      "number of confirmed values",
		}),
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "aborts_total",
			Help:      "number of detected quorum safety violations",
		}),
	}

	var err error
	m.delivered, err = register(reg, m.delivered)
	if err != nil {
		return nil, err
	}
	m.dropped, err = register(reg, m.dropped)
	if err != nil {
		return nil, err
	}
	m.confirmations, err = register(reg, m.confirmations)
	if err != nil {
		return nil, err
	}
	m.aborts, err = register(reg, m.aborts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Metrics) observeDelivered(k Kind) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) observeDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeConfirmed() {
	if m == nil {
		return
	}
	m.confirmations.Inc()
}

func (m *Metrics) observeAborted() {
	if m == nil {
		return
	}
	m.aborts.Inc()
}
