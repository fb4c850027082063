package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instancesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "approvalflow_instances_started_total",
		Help: "Approval instances started",
	})
	instancesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvalflow_instances_finished_total",
		Help: "Approval instances reaching a terminal status",
	}, []string{"status"})
	decisionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvalflow_decisions_total",
		Help: "Decisions recorded, late ones included",
	}, []string{"decision", "late"})
	casConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvalflow_version_conflicts_total",
		Help: "Optimistic concurrency losses per operation",
	}, []string{"op"})
	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "approvalflow_escalations_total",
		Help: "Escalation attempts by result",
	}, []string{"result"})
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "approvalflow_operation_duration_seconds",
		Help:    "Latency of engine operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "kind"})
	schedulerTick = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "approvalflow_scheduler_tick_seconds",
		Help:    "Duration of one escalation scan",
		Buckets: prometheus.DefBuckets,
	})
)
