package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assess_attempts_started_total",
			Help: "Attempts that entered in_progress",
		},
	)

	// reason: limit, in_progress, prerequisite, prerequisite_unavailable
	BeginRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_begin_rejected_total",
			Help: "Begin-attempt calls refused by policy",
		},
		[]string{"reason"},
	)

	AttemptsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_attempts_submitted_total",
			Help: "Attempts that left in_progress",
		},
		[]string{"trigger", "auto_submitted"},
	)

	// result: applied, rejected
	GradeEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assess_manual_grade_entries_total",
			Help: "Manual grade entries by outcome",
		},
		[]string{"result"},
	)

	FinalPercentage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assess_final_percentage",
			Help:    "Percentage of attempts when they reach graded",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	OpenCountdowns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assess_open_countdowns",
			Help: "Timed attempts currently armed with the auto-submit controller",
		},
	)
)

func Handler() http.Handler { return promhttp.Handler() }
