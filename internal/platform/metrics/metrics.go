package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	RecordsConsumed    prometheus.Counter
	RecordsDiscarded   *prometheus.CounterVec
	RecordsDispatched  *prometheus.CounterVec
	LifeEventsRecorded *prometheus.CounterVec
	ResolverDrops      prometheus.Counter
	DeathEventsUpserts prometheus.Counter
	TriggersPublished  prometheus.Counter
	ReconcileRuns      prometheus.Counter
	ReconcileDuration  prometheus.Histogram
}

// New creates all pipeline metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates the metrics on a specific registerer. Tests pass a fresh
// prometheus.NewRegistry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_records_consumed_total",
			Help: "Registry change records pulled from the inbound topic",
		}),
		RecordsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_records_discarded_total",
			Help: "Records discarded before dispatch, by reason",
		}, []string{"reason"}),
		RecordsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_records_dispatched_total",
			Help: "Classified life events handed to a handler, by category",
		}, []string{"category"}),
		LifeEventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lifeline_life_events_recorded_total",
			Help: "Life-event envelopes persisted for categories without a dedicated pipeline, by category",
		}, []string{"category"}),
		ResolverDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_resolver_drops_total",
			Help: "Events dropped because the subject id resolved to a non-permanent identifier",
		}),
		DeathEventsUpserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_death_events_upserts_total",
			Help: "Death event rows created or refreshed",
		}),
		TriggersPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_triggers_published_total",
			Help: "Downstream case triggers published",
		}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "lifeline_reconcile_runs_total",
			Help: "Reconciliation runs started on the leading replica",
		}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifeline_reconcile_run_duration_seconds",
			Help:    "Wall time of a reconciliation run",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}
