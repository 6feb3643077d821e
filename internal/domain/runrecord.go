package domain

import "time"

// RunRecord audit entry written for every rebalance run, successful or not.
type RunRecord struct {
	RunID      string            `json:"run_id"`
	Mode       Mode              `json:"mode"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Snapshot   *HoldingsSnapshot `json:"snapshot,omitempty"`
	Drift      *DriftResult      `json:"drift,omitempty"`
	Preflight  *PreflightReport  `json:"preflight,omitempty"`
	Plan       *ExecutionPlan    `json:"plan,omitempty"`
	Outcome    *ExecutionOutcome `json:"outcome,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Executed reports whether orders were dispatched in this run.
func (r RunRecord) Executed() bool {
	return r.Outcome != nil
}

// RunRecordEntry a run record with its position in the log.
type RunRecordEntry struct {
	Index  uint64
	Record RunRecord
}
