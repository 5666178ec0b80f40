package publisher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"auto_reddit_speakout_poster/ledger"
)

// Metrics counts run outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	comments    *prometheus.CounterVec
	repairs     *prometheus.CounterVec
	duration    prometheus.Histogram
	lastRunTime prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakout_poster_runs_total",
			Help: "Runs by outcome and trigger",
		}, []string{"outcome", "trigger"}),
		comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakout_poster_comments_total",
			Help: "Source comment attempts by outcome",
		}, []string{"outcome"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speakout_poster_comment_repairs_total",
			Help: "Comment repair invocations by status",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "speakout_poster_run_duration_seconds",
			Help:    "Wall time of a run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speakout_poster_last_run_timestamp_seconds",
			Help: "Unix time of the last recorded run",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.comments, m.repairs, m.duration, m.lastRunTime)
	}
	return m
}

func (m *Metrics) observeRun(rec ledger.RunRecord, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(rec.Outcome), string(rec.Source)).Inc()
	if rec.CommentOutcome != "" {
		m.comments.WithLabelValues(string(rec.CommentOutcome)).Inc()
	}
	m.duration.Observe(took.Seconds())
	m.lastRunTime.Set(float64(rec.Timestamp.Unix()))
}

func (m *Metrics) observeRepair(status RepairStatus) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(string(status)).Inc()
}
