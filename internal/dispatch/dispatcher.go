package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/backend"
	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/photos"
	"darkroom/internal/priority"
	"darkroom/internal/services"
)

// Gate is polled on the submission path to decide whether new work may be
// handed to the backend. The resource monitor satisfies it.
type Gate interface {
	ShouldThrottle() bool
}

// QueueStats aggregates dispatcher state for the status surface.
type QueueStats struct {
	ByStatus    map[Status]int `json:"by_status"`
	ByPriority  map[int]int    `json:"by_priority"`
	ByLane      map[Lane]int   `json:"by_lane"`
	PausedLanes []string       `json:"paused_lanes"`
}

// Dispatcher hands submission units to the execution backend and tracks the
// resulting jobs. Job ids are the handles callers hold; the backend's own
// handle stays internal to the record.
type Dispatcher struct {
	store   *Store
	backend backend.Backend
	calc    *priority.Calculator
	meta    photos.MetadataProvider
	gate    Gate
	logger  *slog.Logger

	submitTimeout time.Duration
	rushMin       int
	bulkMax       int

	mu     sync.Mutex
	paused map[Lane]bool
}

// NewDispatcher wires the dispatcher. gate may be nil when no resource monitor
// is attached.
func NewDispatcher(
	cfg *config.Config,
	store *Store,
	be backend.Backend,
	calc *priority.Calculator,
	meta photos.MetadataProvider,
	gate Gate,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:         store,
		backend:       be,
		calc:          calc,
		meta:          meta,
		gate:          gate,
		logger:        logging.NewComponentLogger(logger, "dispatcher"),
		submitTimeout: time.Duration(cfg.Dispatcher.SubmitTimeout) * time.Second,
		rushMin:       cfg.Dispatcher.RushLaneMinPriority,
		bulkMax:       cfg.Dispatcher.BulkLaneMaxPriority,
		paused:        make(map[Lane]bool),
	}
}

// LaneFor maps a priority to its consumption lane.
func (d *Dispatcher) LaneFor(prio int) Lane {
	switch {
	case prio >= d.rushMin:
		return LaneRush
	case prio <= d.bulkMax:
		return LaneBulk
	default:
		return LaneStandard
	}
}

// Submit resolves metadata, computes a priority, and hands the unit to the
// backend. It returns the new job's id. Units without catalog metadata are
// rejected. When the job's lane is paused the record is held locally with no
// backend handle and flushed on ResumeLane.
func (d *Dispatcher) Submit(ctx context.Context, unitID string, userRequested bool, configJSON string) (string, error) {
	meta, err := d.meta.Lookup(ctx, unitID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "dispatcher", "submit", "metadata lookup", err)
	}
	if meta == nil {
		return "", services.Wrap(services.ErrNotFound, "dispatcher", "submit", "unknown unit "+unitID, nil)
	}

	if d.gate != nil && d.gate.ShouldThrottle() {
		return "", services.Wrap(services.ErrTransient, "dispatcher", "submit", "resources critical, submission deferred", nil)
	}

	prio := d.calc.Calculate(ctx, unitID, userRequested, nil)
	job := &Job{
		ID:         uuid.NewString(),
		UnitID:     unitID,
		GroupID:    meta.GroupID,
		Priority:   prio,
		Lane:       d.LaneFor(prio),
		Status:     StatusPending,
		ConfigJSON: configJSON,
		CreatedAt:  time.Now().UTC(),
	}

	if d.lanePaused(job.Lane) {
		if err := d.store.Insert(ctx, job); err != nil {
			return "", services.Wrap(services.ErrPersistence, "dispatcher", "submit", "insert held job", err)
		}
		d.logger.Info("job held, lane paused",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldUnitID, unitID),
			logging.String(logging.FieldLane, string(job.Lane)))
		return job.ID, nil
	}

	handle, err := d.submitToBackend(ctx, unitID, prio)
	if err != nil {
		return "", err
	}
	job.BackendHandle = handle

	if err := d.store.Insert(ctx, job); err != nil {
		return "", services.Wrap(services.ErrPersistence, "dispatcher", "submit", "insert job", err)
	}

	d.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldUnitID, unitID),
		logging.String(logging.FieldLane, string(job.Lane)),
		logging.Int("priority", prio))
	return job.ID, nil
}

// SubmitBatch submits every unit at one shared priority, bypassing lane
// valves, and returns one job id per unit in input order. The resource gate
// still applies: a throttling system rejects the whole batch before any unit
// reaches the backend. On failure it returns the ids created so far alongside
// the error so the caller can revoke them.
func (d *Dispatcher) SubmitBatch(ctx context.Context, unitIDs []string, prio int, configJSON string) ([]string, error) {
	if d.gate != nil && d.gate.ShouldThrottle() {
		return nil, services.Wrap(services.ErrTransient, "dispatcher", "submit batch", "resources critical, submission deferred", nil)
	}

	prio = priority.Clamp(prio)
	lane := d.LaneFor(prio)

	ids := make([]string, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		handle, err := d.submitToBackend(ctx, unitID, prio)
		if err != nil {
			return ids, err
		}
		job := &Job{
			ID:            uuid.NewString(),
			UnitID:        unitID,
			Priority:      prio,
			Lane:          lane,
			Status:        StatusPending,
			ConfigJSON:    configJSON,
			BackendHandle: handle,
			CreatedAt:     time.Now().UTC(),
		}
		if err := d.store.Insert(ctx, job); err != nil {
			return ids, services.Wrap(services.ErrPersistence, "dispatcher", "submit batch", "insert job", err)
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Status reports a job's current status, proxying the backend for in-flight
// work. Terminal backend states are mirrored into the local record.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (Status, error) {
	job, err := d.store.GetByID(ctx, jobID)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "dispatcher", "status", "load job", err)
	}
	if job == nil {
		return "", services.Wrap(services.ErrNotFound, "dispatcher", "status", "unknown job "+jobID, nil)
	}
	if job.Status.Terminal() || job.Held() {
		return job.Status, nil
	}

	state, err := d.backend.Status(ctx, job.BackendHandle)
	if err != nil {
		d.logger.Warn("backend status unavailable, serving last known",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
		return job.Status, nil
	}

	status, ok := statusFromTaskState(state)
	if !ok || status == job.Status {
		return job.Status, nil
	}

	now := time.Now().UTC()
	job.Status = status
	if status == StatusProcessing && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.Terminal() {
		job.CompletedAt = &now
		if status == StatusFailed && job.ErrorMessage == "" {
			job.ErrorMessage = "reported failed by execution backend"
		}
	}
	if err := d.store.Update(ctx, job); err != nil {
		d.logger.Error("mirror backend state",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
	return status, nil
}

// Cancel revokes a job best-effort. The local record is marked cancelled even
// when the backend no longer acknowledges the task. Returns false when the job
// was already terminal.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := d.store.GetByID(ctx, jobID)
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "dispatcher", "cancel", "load job", err)
	}
	if job == nil {
		return false, services.Wrap(services.ErrNotFound, "dispatcher", "cancel", "unknown job "+jobID, nil)
	}
	if job.Status.Terminal() {
		return false, nil
	}

	if job.BackendHandle != "" {
		acked, err := d.backend.Cancel(ctx, job.BackendHandle)
		if err != nil {
			d.logger.Warn("backend cancel failed, marking cancelled anyway",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		} else if !acked {
			d.logger.Info("backend task past cancellable window",
				logging.String(logging.FieldJobID, job.ID))
		}
	}

	now := time.Now().UTC()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	if err := d.store.Update(ctx, job); err != nil {
		return false, services.Wrap(services.ErrPersistence, "dispatcher", "cancel", "update job", err)
	}
	return true, nil
}

// Retry resubmits a failed job with its original configuration. The new job
// references the original for lineage and carries an incremented retry count.
func (d *Dispatcher) Retry(ctx context.Context, jobID string) (string, error) {
	job, err := d.store.GetByID(ctx, jobID)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "dispatcher", "retry", "load job", err)
	}
	if job == nil {
		return "", services.Wrap(services.ErrNotFound, "dispatcher", "retry", "unknown job "+jobID, nil)
	}
	if job.Status != StatusFailed {
		return "", services.Wrap(services.ErrInvalidState, "dispatcher", "retry", "job is "+string(job.Status)+", only failed jobs retry", nil)
	}

	retried := &Job{
		ID:          uuid.NewString(),
		UnitID:      job.UnitID,
		GroupID:     job.GroupID,
		Priority:    job.Priority,
		Lane:        job.Lane,
		Status:      StatusPending,
		RetryCount:  job.RetryCount + 1,
		ConfigJSON:  job.ConfigJSON,
		OriginJobID: job.ID,
		CreatedAt:   time.Now().UTC(),
	}

	if !d.lanePaused(retried.Lane) {
		handle, err := d.submitToBackend(ctx, retried.UnitID, retried.Priority)
		if err != nil {
			return "", err
		}
		retried.BackendHandle = handle
	}

	if err := d.store.Insert(ctx, retried); err != nil {
		return "", services.Wrap(services.ErrPersistence, "dispatcher", "retry", "insert job", err)
	}

	d.logger.Info("job retried",
		logging.String(logging.FieldJobID, retried.ID),
		logging.String("origin_job_id", job.ID),
		logging.Int("retry_count", retried.RetryCount))
	return retried.ID, nil
}

// Job returns the stored record for a job id, or nil when unknown.
func (d *Dispatcher) Job(ctx context.Context, jobID string) (*Job, error) {
	job, err := d.store.GetByID(ctx, jobID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "dispatcher", "job", "load job", err)
	}
	return job, nil
}

// PauseLane stops handing new work from the named lane to the backend.
// Submissions into a paused lane are held locally. Returns false when the
// lane was already paused.
func (d *Dispatcher) PauseLane(name string) (bool, error) {
	if !KnownLane(name) {
		return false, services.Wrap(services.ErrValidation, "dispatcher", "pause lane", "unknown lane "+name, nil)
	}
	lane := Lane(name)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused[lane] {
		return false, nil
	}
	d.paused[lane] = true
	d.logger.Info("lane paused", logging.String(logging.FieldLane, name))
	return true, nil
}

// ResumeLane reopens a lane and flushes jobs held while it was paused.
// Returns false when the lane was not paused.
func (d *Dispatcher) ResumeLane(ctx context.Context, name string) (bool, error) {
	if !KnownLane(name) {
		return false, services.Wrap(services.ErrValidation, "dispatcher", "resume lane", "unknown lane "+name, nil)
	}
	lane := Lane(name)

	d.mu.Lock()
	if !d.paused[lane] {
		d.mu.Unlock()
		return false, nil
	}
	delete(d.paused, lane)
	d.mu.Unlock()

	held, err := d.store.ListHeld(ctx, lane)
	if err != nil {
		return true, services.Wrap(services.ErrPersistence, "dispatcher", "resume lane", "list held jobs", err)
	}
	for _, job := range held {
		handle, err := d.submitToBackend(ctx, job.UnitID, job.Priority)
		if err != nil {
			// Stays held until the next resume or retry.
			d.logger.Warn("flush of held job failed",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
			continue
		}
		job.BackendHandle = handle
		if err := d.store.Update(ctx, job); err != nil {
			d.logger.Error("record flushed job",
				logging.String(logging.FieldJobID, job.ID),
				logging.Error(err))
		}
	}
	d.logger.Info("lane resumed",
		logging.String(logging.FieldLane, name),
		logging.Int("flushed", len(held)))
	return true, nil
}

// Stats aggregates queue counts and valve state.
func (d *Dispatcher) Stats(ctx context.Context) (QueueStats, error) {
	byStatus, err := d.store.StatusCounts(ctx)
	if err != nil {
		return QueueStats{}, services.Wrap(services.ErrPersistence, "dispatcher", "stats", "status counts", err)
	}
	byPriority, err := d.store.PriorityCounts(ctx)
	if err != nil {
		return QueueStats{}, services.Wrap(services.ErrPersistence, "dispatcher", "stats", "priority counts", err)
	}
	byLane, err := d.store.LaneCounts(ctx)
	if err != nil {
		return QueueStats{}, services.Wrap(services.ErrPersistence, "dispatcher", "stats", "lane counts", err)
	}

	d.mu.Lock()
	pausedLanes := make([]string, 0, len(d.paused))
	for lane := range d.paused {
		pausedLanes = append(pausedLanes, string(lane))
	}
	d.mu.Unlock()
	sort.Strings(pausedLanes)

	return QueueStats{ByStatus: byStatus, ByPriority: byPriority, ByLane: byLane, PausedLanes: pausedLanes}, nil
}

func (d *Dispatcher) lanePaused(lane Lane) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused[lane]
}

func (d *Dispatcher) submitToBackend(ctx context.Context, unitID string, prio int) (string, error) {
	submitCtx := ctx
	if d.submitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, d.submitTimeout)
		defer cancel()
	}
	handle, err := d.backend.Submit(submitCtx, unitID, prio)
	if err != nil {
		return "", services.Wrap(services.ErrBackend, "dispatcher", "submit", "backend submission for "+unitID, err)
	}
	return handle, nil
}
