package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridreg_outbox_published_total",
			Help: "Outbox events delivered to the publisher",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridreg_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish and will be retried",
		}),
	}
}

func (m *Metrics) AddPublished(n int) { m.Published.Add(float64(n)) }
func (m *Metrics) IncFailures()       { m.Failures.Inc() }
