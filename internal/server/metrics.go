package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitab_queries_total",
		Help: "Answered questions by mode and coverage outcome.",
	}, []string{"mode", "covered"})

	translationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kitab_translation_requests_total",
		Help: "Translation requests by reported job status.",
	}, []string{"status"})
)
