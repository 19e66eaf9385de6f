package batch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

// Dispatcher is the submission surface the coordinator depends on. The job
// dispatcher satisfies it.
type Dispatcher interface {
	SubmitBatch(ctx context.Context, unitIDs []string, priority int, configJSON string) ([]string, error)
	Cancel(ctx context.Context, handle string) (bool, error)
}

// Coordinator owns batch lifecycle state. One coarse mutex guards the batch
// map across every read-modify-write sequence; the durable write is the final
// step of each mutation, so a caller never observes success without the
// snapshot file reflecting it. Persistence failures are logged and the
// in-memory state keeps the attempted change.
type Coordinator struct {
	store      *StateStore
	dispatcher Dispatcher
	logger     *slog.Logger

	defaultPriority int
	retentionDays   int

	mu      sync.Mutex
	batches map[string]*Record
}

// NewCoordinator wires the coordinator. Call RecoverInterrupted once at
// startup to load persisted batches.
func NewCoordinator(cfg *config.Config, store *StateStore, dispatcher Dispatcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:           store,
		dispatcher:      dispatcher,
		logger:          logging.NewComponentLogger(logger, "coordinator"),
		defaultPriority: cfg.Batch.DefaultPriority,
		retentionDays:   cfg.Batch.RetentionDays,
		batches:         make(map[string]*Record),
	}
}

// Start creates a RUNNING batch, persists it, submits every unit through the
// dispatcher at the batch priority, then persists the returned handles. An
// empty batchID gets a generated id. A transient rejection before any unit was
// submitted withdraws the batch entirely; any other submission failure cancels
// the handles already created, marks the batch FAILED, and propagates the
// error.
func (c *Coordinator) Start(ctx context.Context, unitIDs []string, groupID string, configJSON json.RawMessage, batchID string) (*Record, error) {
	if len(unitIDs) == 0 {
		return nil, services.Wrap(services.ErrValidation, "coordinator", "start", "batch needs at least one unit", nil)
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.batches[batchID]; exists {
		return nil, services.Wrap(services.ErrInvalidState, "coordinator", "start", "batch "+batchID+" already exists", nil)
	}

	now := time.Now().UTC()
	rec := &Record{
		SchemaVersion: SchemaVersion,
		BatchID:       batchID,
		GroupID:       groupID,
		UnitIDs:       append([]string(nil), unitIDs...),
		ProcessedIDs:  []string{},
		FailedIDs:     []string{},
		Status:        StatusRunning,
		CreatedAt:     now,
		StartedAt:     &now,
		Config:        configJSON,
		TaskHandles:   []string{},
	}
	c.batches[batchID] = rec
	c.persist(rec)

	handles, err := c.dispatcher.SubmitBatch(ctx, unitIDs, c.defaultPriority, string(configJSON))
	if err != nil {
		for _, handle := range handles {
			if _, cancelErr := c.dispatcher.Cancel(ctx, handle); cancelErr != nil {
				c.logger.Warn("revoke of partial submission failed",
					logging.String(logging.FieldBatchID, batchID),
					logging.Error(cancelErr))
			}
		}
		// A throttled dispatcher rejects before any unit reaches the
		// backend; the batch is withdrawn rather than failed so the
		// caller can resubmit once resources recover.
		if errors.Is(err, services.ErrTransient) && len(handles) == 0 {
			delete(c.batches, batchID)
			if delErr := c.store.Delete(batchID); delErr != nil {
				c.logger.Warn("remove withdrawn batch snapshot",
					logging.String(logging.FieldBatchID, batchID),
					logging.Error(delErr))
			}
			return nil, services.Wrap(services.ErrTransient, "coordinator", "start", "batch submission deferred", err)
		}
		completed := time.Now().UTC()
		rec.Status = StatusFailed
		rec.CompletedAt = &completed
		c.persist(rec)
		return nil, services.Wrap(services.ErrBackend, "coordinator", "start", "batch submission", err)
	}

	rec.TaskHandles = handles
	c.persist(rec)

	c.logger.Info("batch started",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("units", len(unitIDs)))
	return rec.clone(), nil
}

// Pause halts a RUNNING batch: outstanding handles are cancelled best-effort,
// the status flips to PAUSED, and the snapshot is rewritten. Any other state,
// including an unknown id, returns false without mutation.
func (c *Coordinator) Pause(ctx context.Context, batchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.batches[batchID]
	if !ok || rec.Status != StatusRunning {
		return false
	}

	c.cancelHandles(ctx, rec)
	now := time.Now().UTC()
	rec.Status = StatusPaused
	rec.PausedAt = &now
	rec.TaskHandles = []string{}
	c.persist(rec)

	c.logger.Info("batch paused", logging.String(logging.FieldBatchID, batchID))
	return true
}

// Resume restarts a PAUSED batch. With no remaining units it transitions
// straight to COMPLETED; otherwise the remainder is resubmitted and the batch
// returns to RUNNING with a fresh started timestamp. Returns false without
// mutation for unknown ids or non-PAUSED states.
func (c *Coordinator) Resume(ctx context.Context, batchID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.batches[batchID]
	if !ok || rec.Status != StatusPaused {
		return false, nil
	}

	remaining := rec.Remaining()
	now := time.Now().UTC()
	if len(remaining) == 0 {
		rec.Status = StatusCompleted
		rec.CompletedAt = &now
		c.persist(rec)
		c.logger.Info("batch completed on resume, nothing remaining",
			logging.String(logging.FieldBatchID, batchID))
		return true, nil
	}

	handles, err := c.dispatcher.SubmitBatch(ctx, remaining, c.defaultPriority, string(rec.Config))
	if err != nil {
		for _, handle := range handles {
			if _, cancelErr := c.dispatcher.Cancel(ctx, handle); cancelErr != nil {
				c.logger.Warn("revoke of partial resubmission failed",
					logging.String(logging.FieldBatchID, batchID),
					logging.Error(cancelErr))
			}
		}
		// The batch stays PAUSED either way; a transient rejection keeps
		// its marker so callers know to resume again later.
		if errors.Is(err, services.ErrTransient) && len(handles) == 0 {
			return false, services.Wrap(services.ErrTransient, "coordinator", "resume", "resubmission deferred", err)
		}
		return false, services.Wrap(services.ErrBackend, "coordinator", "resume", "resubmission", err)
	}

	rec.Status = StatusRunning
	rec.StartedAt = &now
	rec.TaskHandles = handles
	c.persist(rec)

	c.logger.Info("batch resumed",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("remaining", len(remaining)))
	return true, nil
}

// Cancel aborts a batch from any non-terminal state. Outstanding handles are
// revoked best-effort. Returns false without mutation for unknown ids or
// terminal batches.
func (c *Coordinator) Cancel(ctx context.Context, batchID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.batches[batchID]
	if !ok || rec.Status.Terminal() {
		return false
	}

	c.cancelHandles(ctx, rec)
	now := time.Now().UTC()
	rec.Status = StatusCancelled
	rec.CompletedAt = &now
	rec.TaskHandles = []string{}
	c.persist(rec)

	c.logger.Info("batch cancelled", logging.String(logging.FieldBatchID, batchID))
	return true
}

// UpdateProgress records one unit's outcome. Duplicate reports of a unit are
// idempotent no-ops. When every unit is accounted for, the batch
// auto-completes exactly once. The snapshot is rewritten on every call.
// Returns false for unknown ids or terminal batches.
func (c *Coordinator) UpdateProgress(_ context.Context, batchID, unitID string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.batches[batchID]
	if !ok || rec.Status.Terminal() {
		return false
	}

	if !rec.Recorded(unitID) && contains(rec.UnitIDs, unitID) {
		if success {
			rec.ProcessedIDs = append(rec.ProcessedIDs, unitID)
		} else {
			rec.FailedIDs = append(rec.FailedIDs, unitID)
		}
		if rec.Status == StatusRunning && len(rec.ProcessedIDs)+len(rec.FailedIDs) == len(rec.UnitIDs) {
			now := time.Now().UTC()
			rec.Status = StatusCompleted
			rec.CompletedAt = &now
			rec.TaskHandles = []string{}
			c.logger.Info("batch auto-completed",
				logging.String(logging.FieldBatchID, batchID),
				logging.Int("processed", len(rec.ProcessedIDs)),
				logging.Int("failed", len(rec.FailedIDs)))
		}
	}
	c.persist(rec)
	return true
}

// Status returns a copy of the batch record, or (nil, false) for unknown ids.
func (c *Coordinator) Status(batchID string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.batches[batchID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// List returns copies of every known batch ordered by creation time.
func (c *Coordinator) List() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]*Record, 0, len(c.batches))
	for _, rec := range c.batches {
		records = append(records, rec.clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records
}

// RecoverInterrupted loads persisted batches into memory once at startup.
// Batches found RUNNING had no clean pause or cancel before the last
// shutdown; they are demoted to PAUSED and their files rewritten. It returns
// the number of batches recovered and the number that failed to recover.
func (c *Coordinator) RecoverInterrupted() (recovered, failed int) {
	records, err := c.store.LoadAll()
	if err != nil {
		c.logger.Error("load persisted batches", logging.Error(err))
		return 0, 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range records {
		if rec.Status == StatusRunning {
			now := time.Now().UTC()
			rec.Status = StatusPaused
			rec.PausedAt = &now
			rec.TaskHandles = []string{}
			if err := c.store.Save(rec); err != nil {
				c.logger.Error("rewrite recovered batch",
					logging.String(logging.FieldBatchID, rec.BatchID),
					logging.Error(err))
				failed++
				continue
			}
			c.logger.Info("interrupted batch demoted to paused",
				logging.String(logging.FieldBatchID, rec.BatchID))
			recovered++
		}
		c.batches[rec.BatchID] = rec
	}
	return recovered, failed
}

// Cleanup removes COMPLETED and CANCELLED batches whose completion timestamp
// is older than the cutoff, both in memory and on disk. It returns the number
// removed.
func (c *Coordinator) Cleanup(olderThanDays int) int {
	if olderThanDays <= 0 {
		olderThanDays = c.retentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, rec := range c.batches {
		if rec.Status != StatusCompleted && rec.Status != StatusCancelled {
			continue
		}
		if rec.CompletedAt == nil || !rec.CompletedAt.Before(cutoff) {
			continue
		}
		if err := c.store.Delete(id); err != nil {
			c.logger.Warn("delete expired batch snapshot",
				logging.String(logging.FieldBatchID, id),
				logging.Error(err))
			continue
		}
		delete(c.batches, id)
		removed++
	}
	if removed > 0 {
		c.logger.Info("expired batches removed", logging.Int("count", removed))
	}
	return removed
}

// cancelHandles revokes every outstanding handle, logging failures. Units
// past the backend's cancellable window still complete; their late progress
// reports are honored.
func (c *Coordinator) cancelHandles(ctx context.Context, rec *Record) {
	for _, handle := range rec.TaskHandles {
		if _, err := c.dispatcher.Cancel(ctx, handle); err != nil {
			c.logger.Warn("handle cancellation failed",
				logging.String(logging.FieldBatchID, rec.BatchID),
				logging.Error(err))
		}
	}
}

// persist flushes the record as the final step of a mutation. On failure the
// in-memory state keeps the attempted change; availability wins over strict
// durability here.
func (c *Coordinator) persist(rec *Record) {
	if err := c.store.Save(rec); err != nil {
		c.logger.Error("persist batch state",
			logging.String(logging.FieldBatchID, rec.BatchID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "in-memory state is ahead of disk"))
	}
}
