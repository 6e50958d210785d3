package aml

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	amlAssessments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_aml_assessments_total",
		Help: "Risk assessments by severity",
	}, []string{"severity"})

	amlAssessmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_aml_assessment_duration_seconds",
		Help:    "Risk pipeline latency per transaction",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	amlAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_aml_alerts_total",
		Help: "Alerts raised by headline factor type",
	}, []string{"type"})

	amlReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_aml_reports_filed_total",
		Help: "Regulatory reports filed, automatic and manual",
	})

	amlHistoryDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_aml_history_decode_failures_total",
		Help: "History rows skipped because the stored amount failed decryption",
	})
)
