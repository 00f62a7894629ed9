package network

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the network layer's Prometheus instrumentation,
// registered on a registry the embedding loop owns rather than the
// global default registerer, so multiple Network instances (or tests)
// never collide on metric registration.
type metrics struct {
	sent    prometheus.Counter
	matched prometheus.Counter
	timeout prometheus.Counter
	dropped *prometheus.CounterVec
	flying  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		sent: factory.NewCounter(prometheus.CounterOpts{
			Name: "probes_sent_total",
			Help: "Total number of probes handed to the raw socket layer.",
		}),
		matched: factory.NewCounter(prometheus.CounterOpts{
			Name: "probes_matched_total",
			Help: "Total number of replies matched to an in-flight probe.",
		}),
		timeout: factory.NewCounter(prometheus.CounterOpts{
			Name: "probes_timeout_total",
			Help: "Total number of in-flight probes that expired unanswered.",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "probes_dropped_total",
			Help: "Total number of packets dropped by the network layer, by reason.",
		}, []string{"reason"}),
		flying: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flying_probes",
			Help: "Current number of probes in flight awaiting a reply or timeout.",
		}),
	}
}
