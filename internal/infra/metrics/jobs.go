package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		streamingJobsTotal,
		streamingJobsInFlight,
		jobClaimBatchSize,
		jobsSweptTotal,
		jobsRequeuedTotal,
		jobDurationSeconds,
	)
}

var (
	streamingJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streaming_jobs_total",
			Help: "Total streaming jobs reaching a terminal status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'cancelled'
	)

	streamingJobsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streaming_jobs_in_flight",
			Help: "Current number of jobs per active status.",
		},
		[]string{"status"}, // 'pending', 'processing', 'streaming'
	)

	jobClaimBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_claim_batch_size",
			Help:    "Jobs claimed per worker poll.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	jobsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_swept_total",
			Help: "Expired terminal jobs removed by the sweeper.",
		},
	)

	jobsRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_requeued_total",
			Help: "Stale claimed jobs returned to pending by the reaper.",
		},
	)

	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Wall time from claim to terminal status.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
)

func IncJob(status string) {
	streamingJobsTotal.WithLabelValues(norm(status)).Inc()
}

func SetJobsInFlight(status string, n int) {
	streamingJobsInFlight.WithLabelValues(norm(status)).Set(float64(n))
}

func ObserveClaimBatch(n int) {
	jobClaimBatchSize.Observe(float64(n))
}

func AddJobsSwept(n int) {
	jobsSweptTotal.Add(float64(n))
}

func AddJobsRequeued(n int) {
	jobsRequeuedTotal.Add(float64(n))
}

func ObserveJobDuration(status string, seconds float64) {
	jobDurationSeconds.WithLabelValues(norm(status)).Observe(seconds)
}
