package api

import "encoding/json"

// BatchView is the wire representation of a batch record.
type BatchView struct {
	BatchID         string          `json:"batch_id"`
	GroupID         string          `json:"group_id,omitempty"`
	Status          string          `json:"status"`
	TotalUnits      int             `json:"total_units"`
	ProcessedCount  int             `json:"processed_count"`
	FailedCount     int             `json:"failed_count"`
	ProgressPercent float64         `json:"progress_percent"`
	CreatedAt       string          `json:"created_at"`
	StartedAt       string          `json:"started_at,omitempty"`
	PausedAt        string          `json:"paused_at,omitempty"`
	CompletedAt     string          `json:"completed_at,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
}

// JobView is the wire representation of a dispatched job.
type JobView struct {
	JobID        string `json:"job_id"`
	UnitID       string `json:"unit_id"`
	GroupID      string `json:"group_id,omitempty"`
	Priority     int    `json:"priority"`
	Lane         string `json:"lane"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retry_count"`
	OriginJobID  string `json:"origin_job_id,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// StartBatchRequest asks the coordinator to begin a batch.
type StartBatchRequest struct {
	UnitIDs []string        `json:"unit_ids"`
	GroupID string          `json:"group_id,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
}

// ProgressRequest reports one unit's outcome into a batch.
type ProgressRequest struct {
	UnitID  string `json:"unit_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubmitJobRequest asks the dispatcher to submit a single unit.
type SubmitJobRequest struct {
	UnitID        string          `json:"unit_id"`
	UserRequested bool            `json:"user_requested,omitempty"`
	Config        json.RawMessage `json:"config,omitempty"`
}

// UpdateWeightsRequest replaces the priority scoring weights.
type UpdateWeightsRequest struct {
	Quality     float64 `json:"quality"`
	Age         float64 `json:"age"`
	UserRequest float64 `json:"user_request"`
	Context     float64 `json:"context"`
}

// BoostGroupRequest raises priority across one group's pending units.
type BoostGroupRequest struct {
	GroupID string `json:"group_id"`
	Amount  int    `json:"amount"`
}

// CleanupRequest scopes a batch cleanup pass.
type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

// MutationResponse reports whether a lifecycle operation took effect.
type MutationResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// BatchListResponse wraps the batch list projection.
type BatchListResponse struct {
	Batches []BatchView `json:"batches"`
}

// RecoveryResponse reports the outcome of a startup recovery pass.
type RecoveryResponse struct {
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// CleanupResponse reports the number of records removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// RebalanceResponse reports a priority rebalancing sweep.
type RebalanceResponse struct {
	Adjusted   int `json:"adjusted"`
	Considered int `json:"considered"`
}

// StarvingUnitView describes a pending unit past the starvation threshold.
type StarvingUnitView struct {
	UnitID     string  `json:"unit_id"`
	Priority   int     `json:"priority"`
	AgeSeconds float64 `json:"age_seconds"`
}

// StarvingResponse lists starving units, oldest first.
type StarvingResponse struct {
	Units []StarvingUnitView `json:"units"`
}

// ThresholdsRequest replaces the resource classification boundaries.
type ThresholdsRequest struct {
	CPUCritical     float64 `json:"cpu_critical"`
	MemoryCritical  float64 `json:"memory_critical"`
	GPUTempCritical float64 `json:"gpu_temp_critical"`
	CPUBusy         float64 `json:"cpu_busy"`
	MemoryBusy      float64 `json:"memory_busy"`
	GPUTempBusy     float64 `json:"gpu_temp_busy"`
	GPULoadBusy     float64 `json:"gpu_load_busy"`
	CPUIdle         float64 `json:"cpu_idle"`
	MemoryIdle      float64 `json:"memory_idle"`
	GPULoadIdle     float64 `json:"gpu_load_idle"`
}

// DaemonStatus aggregates process, queue, and resource state for the status
// surface.
type DaemonStatus struct {
	Running       bool   `json:"running"`
	PID           int    `json:"pid"`
	JobDBPath     string `json:"job_db_path"`
	LockFilePath  string `json:"lock_file_path"`
	ActiveBatches int    `json:"active_batches"`
}
