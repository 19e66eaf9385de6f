package api

import (
	"time"

	"darkroom/internal/batch"
	"darkroom/internal/dispatch"
	"darkroom/internal/priority"
)

// FromBatchRecord projects a batch record into its wire form.
func FromBatchRecord(rec *batch.Record) BatchView {
	view := BatchView{
		BatchID:         rec.BatchID,
		GroupID:         rec.GroupID,
		Status:          string(rec.Status),
		TotalUnits:      rec.TotalUnits,
		ProcessedCount:  rec.ProcessedCount,
		FailedCount:     rec.FailedCount,
		ProgressPercent: rec.ProgressPercent(),
		CreatedAt:       formatTime(rec.CreatedAt),
		Config:          rec.Config,
	}
	view.StartedAt = formatTimePtr(rec.StartedAt)
	view.PausedAt = formatTimePtr(rec.PausedAt)
	view.CompletedAt = formatTimePtr(rec.CompletedAt)
	return view
}

// FromBatchRecords projects a record list, preserving order.
func FromBatchRecords(records []*batch.Record) []BatchView {
	views := make([]BatchView, 0, len(records))
	for _, rec := range records {
		views = append(views, FromBatchRecord(rec))
	}
	return views
}

// FromJob projects a job record into its wire form.
func FromJob(job *dispatch.Job) JobView {
	view := JobView{
		JobID:        job.ID,
		UnitID:       job.UnitID,
		GroupID:      job.GroupID,
		Priority:     job.Priority,
		Lane:         string(job.Lane),
		Status:       string(job.Status),
		RetryCount:   job.RetryCount,
		OriginJobID:  job.OriginJobID,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTime(job.CreatedAt),
	}
	view.StartedAt = formatTimePtr(job.StartedAt)
	view.CompletedAt = formatTimePtr(job.CompletedAt)
	return view
}

// FromStarvingUnits projects starvation query results.
func FromStarvingUnits(units []priority.StarvingUnit) []StarvingUnitView {
	views := make([]StarvingUnitView, 0, len(units))
	for _, unit := range units {
		views = append(views, StarvingUnitView{
			UnitID:     unit.UnitID,
			Priority:   unit.Priority,
			AgeSeconds: unit.Age.Seconds(),
		})
	}
	return views
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
