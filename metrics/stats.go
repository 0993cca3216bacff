package metrics

import (
	"time"

	"go.uber.org/atomic"
)

// ExecutionStats aggregates workflow outcomes. Safe for concurrent use.
type ExecutionStats struct {
	total    atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64
	external atomic.Int64
	escalate atomic.Int64
	totalNs  atomic.Int64
}

// Snapshot is a point-in-time copy of ExecutionStats.
type Snapshot struct {
	Total               int64   `json:"total_executions"`
	Success             int64   `json:"successful_executions"`
	Failed              int64   `json:"failed_executions"`
	Escalated           int64   `json:"escalated_retries"`
	AvgExecutionSeconds float64 `json:"avg_execution_time"`
	ExternalTriggerRate float64 `json:"external_search_rate"`
}

func NewExecutionStats() *ExecutionStats { return &ExecutionStats{} }

// Record adds one finished execution.
func (s *ExecutionStats) Record(success, usedExternal bool, d time.Duration) {
	s.total.Inc()
	if success {
		s.success.Inc()
	} else {
		s.failed.Inc()
	}
	if usedExternal {
		s.external.Inc()
	}
	s.totalNs.Add(int64(d))
}

func (s *ExecutionStats) RecordEscalation() { s.escalate.Inc() }

func (s *ExecutionStats) Snapshot() Snapshot {
	total := s.total.Load()
	snap := Snapshot{
		Total:     total,
		Success:   s.success.Load(),
		Failed:    s.failed.Load(),
		Escalated: s.escalate.Load(),
	}
	if total > 0 {
		snap.AvgExecutionSeconds = time.Duration(s.totalNs.Load() / total).Seconds()
		snap.ExternalTriggerRate = float64(s.external.Load()) / float64(total)
	}
	return snap
}
