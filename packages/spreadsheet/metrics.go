package spreadsheet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsSubsystem = "engine"

// Metrics records recalculation activity. A nil *Metrics records nothing.
type Metrics struct {
	edits       prometheus.Counter
	cycles      prometheus.Counter
	evalErrors  *prometheus.CounterVec
	closureSize prometheus.Histogram
	duration    prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		edits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "edits_total",
			Help:      "Cell edits applied, including clears",
		}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "cycles_total",
			Help:      "Evaluations rejected for closing a circular reference",
		}),
		// Labels: code (the displayed marker, e.g. #DIV/0!)
		evalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "evaluation_errors_total",
			Help:      "Formula evaluations that produced an error marker",
		}, []string{"code"}),
		closureSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "recalc_closure_cells",
			Help:      "Dependent cells re-evaluated per edit",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000, 10000},
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "recalc_duration_seconds",
			Help:      "Time spent applying one edit and its recalculation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

func (m *Metrics) recordEdit(closure int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.edits.Inc()
	m.closureSize.Observe(float64(closure))
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordCycle() {
	if m == nil {
		return
	}
	m.cycles.Inc()
}

func (m *Metrics) recordEvalError(code ErrorCode) {
	if m == nil {
		return
	}
	m.evalErrors.WithLabelValues(ErrorMapper[code]).Inc()
}
