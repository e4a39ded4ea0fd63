package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcome metrics, labelled by the step a failed run stopped at.
var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accountfactory_runs_started_total",
		Help: "Number of account creation runs started",
	})
	RunsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accountfactory_runs_succeeded_total",
		Help: "Number of account creation runs that completed successfully",
	})
	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accountfactory_runs_failed_total",
		Help: "Number of account creation runs that failed, by step",
	}, []string{"step"})
	ValidationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accountfactory_validation_checks_total",
		Help: "Validation check results, by check and status",
	}, []string{"check", "status"})
)
