package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeApplied = "applied"
	OutcomeDryRun  = "dry_run"
	OutcomeFailed  = "failed"
)

// Metrics provides observability for anonymization runs and HTTP sessions.
type Metrics struct {
	Runs            *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	FieldsChanged   prometheus.Counter
	TagsRemoved     prometheus.Counter
	BytesWritten    prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsExpired prometheus.Counter
}

// New registers all metrics with reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dicom_tools_runs_total",
			Help: "Anonymization runs by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dicom_tools_run_duration_seconds",
			Help:    "Duration of a single anonymization run (parse, apply, write)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		FieldsChanged: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom_tools_fields_changed_total",
			Help: "Named fields written with a new value",
		}),
		TagsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom_tools_tags_removed_total",
			Help: "Tag removals performed, including named field removals",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom_tools_bytes_written_total",
			Help: "Bytes of anonymized output written",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicom_tools_sessions_active",
			Help: "HTTP anonymization sessions opened and not yet ended or expired",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom_tools_sessions_expired_total",
			Help: "Sessions dropped after their TTL without being ended",
		}),
	}
}

// ObserveRun records one finished run. Call with time.Now() taken at the
// start of the run.
func (m *Metrics) ObserveRun(outcome string, start time.Time, changed, removed int) {
	m.Runs.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
	m.FieldsChanged.Add(float64(changed))
	m.TagsRemoved.Add(float64(removed))
}

func (m *Metrics) AddBytesWritten(n int64) {
	m.BytesWritten.Add(float64(n))
}

func (m *Metrics) SessionOpened() { m.SessionsActive.Inc() }
func (m *Metrics) SessionClosed() { m.SessionsActive.Dec() }

// SessionExpired records a session whose file was dropped by TTL.
func (m *Metrics) SessionExpired() {
	m.SessionsActive.Dec()
	m.SessionsExpired.Inc()
}
