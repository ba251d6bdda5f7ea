package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration outcomes.
const (
	OutcomeAdmitted     = "admitted"
	OutcomeReplayed     = "replayed"
	OutcomeFull         = "cell_full"
	OutcomeNotFound     = "cell_not_found"
	OutcomeInvalidInput = "invalid_input"
	OutcomeUnavailable  = "store_unavailable"
)

// Metrics provides observability for the grid module.
type Metrics struct {
	Registrations    *prometheus.CounterVec
	RegisterDuration prometheus.Histogram
	CellsLoaded      prometheus.Counter
	CacheLookups     *prometheus.CounterVec
}

// New registers the grid metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridreg_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		RegisterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridreg_register_duration_seconds",
			Help:    "Duration of Register including lock wait",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CellsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridreg_cells_loaded_total",
			Help: "Cells newly inserted by bulk loads",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridreg_available_cache_lookups_total",
			Help: "Available-cells cache lookups by result",
		}, []string{"result"}),
	}
}

// ObserveRegister records one attempt. Call with time.Now() taken at the start.
func (m *Metrics) ObserveRegister(outcome string, start time.Time) {
	m.Registrations.WithLabelValues(outcome).Inc()
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddCellsLoaded(n int) {
	m.CellsLoaded.Add(float64(n))
}

func (m *Metrics) CacheHit()  { m.CacheLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) CacheMiss() { m.CacheLookups.WithLabelValues("miss").Inc() }
