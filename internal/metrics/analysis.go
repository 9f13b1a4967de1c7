package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsTotal,
		jobDuration,
		pollAttempts,
		chatTotal,
	)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_jobs_total",
			Help: "Analysis jobs by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_job_duration_seconds",
			Help:    "Wall time of analysis jobs from submission to settlement.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		},
		[]string{"mode", "outcome"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_poll_attempts",
			Help:    "File status checks per uploaded video.",
			Buckets: []float64{1, 5, 10, 20, 40, 80, 160, 240},
		},
	)

	chatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_chat_total",
			Help: "Chat follow-ups by outcome.",
		},
		[]string{"outcome"},
	)
)

// Analysis describes one settled analysis job.
type Analysis struct {
	Mode         string
	Outcome      string // "success" or an error kind
	Duration     time.Duration
	PollAttempts int
	UploadBytes  int64
}

// ObserveAnalysis updates the Prometheus collectors and emits one EMF line.
func ObserveAnalysis(a Analysis) {
	mode, outcome := norm(a.Mode), norm(a.Outcome)

	jobsTotal.WithLabelValues(mode, outcome).Inc()
	jobDuration.WithLabelValues(mode, outcome).Observe(a.Duration.Seconds())
	if a.PollAttempts > 0 {
		pollAttempts.Observe(float64(a.PollAttempts))
	}

	rec := New(Namespace).
		Dimension("Mode", mode).
		Dimension("Outcome", outcome).
		Metric("JobDurationMs", float64(a.Duration.Milliseconds()), UnitMilliseconds).
		Metric("PollAttempts", float64(a.PollAttempts), UnitCount).
		Count("JobCount")
	if a.UploadBytes > 0 {
		rec.Metric("UploadBytes", float64(a.UploadBytes), UnitBytes)
	}
	rec.Flush()
}

// ObserveChat counts one chat follow-up.
func ObserveChat(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	chatTotal.WithLabelValues(outcome).Inc()
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
