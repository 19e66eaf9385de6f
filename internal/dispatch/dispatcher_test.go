package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"darkroom/internal/backend"
	"darkroom/internal/config"
	"darkroom/internal/dispatch"
	"darkroom/internal/logging"
	"darkroom/internal/priority"
	"darkroom/internal/services"
	"darkroom/internal/testsupport"
)

type stubGate struct{ throttle bool }

func (g *stubGate) ShouldThrottle() bool { return g.throttle }

type fixture struct {
	cfg        *config.Config
	store      *dispatch.Store
	mem        *backend.Memory
	dispatcher *dispatch.Dispatcher
	gate       *stubGate
}

func newFixture(t *testing.T, unitIDs ...string) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJobStore(t, cfg)
	mem := backend.NewMemory()
	provider := testsupport.SeededProvider(unitIDs...)
	calc := priority.NewCalculator(cfg, provider, store, logging.NewNop())
	gate := &stubGate{}
	dispatcher := dispatch.NewDispatcher(cfg, store, mem, calc, provider, gate, logging.NewNop())
	return &fixture{cfg: cfg, store: store, mem: mem, dispatcher: dispatcher, gate: gate}
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	jobID, err := fx.dispatcher.Submit(ctx, "photo-1", false, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job, err := fx.store.GetByID(ctx, jobID)
	if err != nil || job == nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if job.Status != dispatch.StatusPending {
		t.Fatalf("Status = %s, want pending", job.Status)
	}
	if job.BackendHandle == "" {
		t.Fatal("expected backend handle on open lane")
	}
	if job.Priority < priority.MinPriority || job.Priority > priority.MaxPriority {
		t.Fatalf("priority %d out of range", job.Priority)
	}
	if unit, ok := fx.mem.UnitFor(job.BackendHandle); !ok || unit != "photo-1" {
		t.Fatalf("backend received unit %q", unit)
	}
}

func TestSubmitUnknownUnitIsNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.dispatcher.Submit(context.Background(), "nope", false, "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestSubmitThrottledIsRetryable(t *testing.T) {
	fx := newFixture(t, "photo-1")
	fx.gate.throttle = true

	_, err := fx.dispatcher.Submit(context.Background(), "photo-1", false, "")
	if err == nil {
		t.Fatal("expected error while throttled")
	}
	if !services.Retryable(err) {
		t.Fatalf("throttled submit must be retryable, got %v", err)
	}
}

func TestSubmitBackendFailureIsRetryable(t *testing.T) {
	fx := newFixture(t, "photo-1")
	fx.mem.SetSubmitError(context.DeadlineExceeded)

	_, err := fx.dispatcher.Submit(context.Background(), "photo-1", false, "")
	if err == nil {
		t.Fatal("expected error from backend")
	}
	if !services.Retryable(err) {
		t.Fatalf("backend submit failure must be retryable, got %v", err)
	}
}

func TestSubmitBatchThrottledRejectsWholeBatch(t *testing.T) {
	fx := newFixture(t)
	fx.gate.throttle = true
	ctx := context.Background()

	ids, err := fx.dispatcher.SubmitBatch(ctx, []string{"photo-1", "photo-2", "photo-3"}, 6, "")
	if err == nil {
		t.Fatal("expected error while throttled")
	}
	if !services.Retryable(err) {
		t.Fatalf("throttled batch submit must be retryable, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("got %d ids from a throttled batch, want 0", len(ids))
	}
	if n := fx.mem.TaskCount(); n != 0 {
		t.Fatalf("backend holds %d tasks, want 0", n)
	}

	fx.gate.throttle = false
	if _, err := fx.dispatcher.SubmitBatch(ctx, []string{"photo-1"}, 6, ""); err != nil {
		t.Fatalf("SubmitBatch after throttle cleared: %v", err)
	}
}

func TestSubmitBatchReturnsHandlesInOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	units := []string{"photo-1", "photo-2", "photo-3"}
	ids, err := fx.dispatcher.SubmitBatch(ctx, units, 6, "")
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if len(ids) != len(units) {
		t.Fatalf("got %d ids, want %d", len(ids), len(units))
	}
	for i, id := range ids {
		job, err := fx.store.GetByID(ctx, id)
		if err != nil || job == nil {
			t.Fatalf("job %d missing: %v", i, err)
		}
		if job.UnitID != units[i] {
			t.Fatalf("id %d maps to unit %q, want %q", i, job.UnitID, units[i])
		}
		if job.Priority != 6 {
			t.Fatalf("shared priority not applied: %d", job.Priority)
		}
	}
}

func TestSubmitBatchClampsPriority(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	ids, err := fx.dispatcher.SubmitBatch(ctx, []string{"photo-1"}, 99, "")
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	job, _ := fx.store.GetByID(ctx, ids[0])
	if job.Priority != priority.MaxPriority {
		t.Fatalf("priority = %d, want clamped to %d", job.Priority, priority.MaxPriority)
	}
}

func TestStatusMirrorsTerminalBackendState(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	jobID, err := fx.dispatcher.Submit(ctx, "photo-1", false, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job, _ := fx.store.GetByID(ctx, jobID)

	fx.mem.Complete(job.BackendHandle)
	status, err := fx.dispatcher.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != dispatch.StatusCompleted {
		t.Fatalf("Status = %s, want completed", status)
	}

	stored, _ := fx.store.GetByID(ctx, jobID)
	if stored.Status != dispatch.StatusCompleted {
		t.Fatalf("terminal state not mirrored: %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Fatal("CompletedAt not set on mirror")
	}
}

func TestStatusUnknownJobIsNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.dispatcher.Status(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCancelMarksRecordRegardlessOfBackend(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	jobID, _ := fx.dispatcher.Submit(ctx, "photo-1", false, "")
	job, _ := fx.store.GetByID(ctx, jobID)

	// Backend already finished: cancel is past the window there, the local
	// record still flips.
	fx.mem.Complete(job.BackendHandle)
	ok, err := fx.dispatcher.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !ok {
		t.Fatal("Cancel should report true for a non-terminal record")
	}
	stored, _ := fx.store.GetByID(ctx, jobID)
	if stored.Status != dispatch.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", stored.Status)
	}

	// Second cancel finds a terminal record.
	ok, err = fx.dispatcher.Cancel(ctx, jobID)
	if err != nil || ok {
		t.Fatalf("repeat Cancel = %v, %v; want false, nil", ok, err)
	}
}

func TestRetryCreatesLineage(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	jobID, _ := fx.dispatcher.Submit(ctx, "photo-1", false, `{"profile":"raw"}`)
	job, _ := fx.store.GetByID(ctx, jobID)
	fx.mem.Fail(job.BackendHandle)
	if _, err := fx.dispatcher.Status(ctx, jobID); err != nil {
		t.Fatalf("Status: %v", err)
	}

	retryID, err := fx.dispatcher.Retry(ctx, jobID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retryID == jobID {
		t.Fatal("retry must create a new job")
	}

	retried, _ := fx.store.GetByID(ctx, retryID)
	if retried.OriginJobID != jobID {
		t.Fatalf("OriginJobID = %q, want %q", retried.OriginJobID, jobID)
	}
	if retried.RetryCount != 1 {
		t.Fatalf("RetryCount = %d, want 1", retried.RetryCount)
	}
	if retried.ConfigJSON != `{"profile":"raw"}` {
		t.Fatalf("original configuration not carried: %q", retried.ConfigJSON)
	}
	if retried.BackendHandle == "" {
		t.Fatal("retried job should be resubmitted on an open lane")
	}
}

func TestRetryRejectsNonFailedJobs(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	jobID, _ := fx.dispatcher.Submit(ctx, "photo-1", false, "")
	_, err := fx.dispatcher.Retry(ctx, jobID)
	if !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected invalid-state, got %v", err)
	}
}

func TestLaneValveHoldsAndFlushes(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	// Quality 3.0, captured now, no user request lands in the bulk lane.
	ok, err := fx.dispatcher.PauseLane("bulk")
	if err != nil || !ok {
		t.Fatalf("PauseLane = %v, %v", ok, err)
	}

	jobID, err := fx.dispatcher.Submit(ctx, "photo-1", false, "")
	if err != nil {
		t.Fatalf("Submit into paused lane: %v", err)
	}
	job, _ := fx.store.GetByID(ctx, jobID)
	if job.Lane != dispatch.LaneBulk {
		t.Fatalf("Lane = %s, want bulk", job.Lane)
	}
	if !job.Held() {
		t.Fatal("job should be held while lane is paused")
	}
	if fx.mem.TaskCount() != 0 {
		t.Fatal("held job must not reach the backend")
	}

	ok, err = fx.dispatcher.ResumeLane(ctx, "bulk")
	if err != nil || !ok {
		t.Fatalf("ResumeLane = %v, %v", ok, err)
	}
	job, _ = fx.store.GetByID(ctx, jobID)
	if job.Held() {
		t.Fatal("resume must flush held jobs to the backend")
	}
	if fx.mem.TaskCount() != 1 {
		t.Fatalf("backend task count = %d, want 1", fx.mem.TaskCount())
	}
}

func TestLaneValveIdempotence(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if ok, _ := fx.dispatcher.PauseLane("rush"); !ok {
		t.Fatal("first pause should report true")
	}
	if ok, _ := fx.dispatcher.PauseLane("rush"); ok {
		t.Fatal("second pause should report false")
	}
	if ok, _ := fx.dispatcher.ResumeLane(ctx, "rush"); !ok {
		t.Fatal("resume of paused lane should report true")
	}
	if ok, _ := fx.dispatcher.ResumeLane(ctx, "rush"); ok {
		t.Fatal("resume of open lane should report false")
	}

	if _, err := fx.dispatcher.PauseLane("express"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown lane should be rejected, got %v", err)
	}
}

func TestStatsAggregatesQueueState(t *testing.T) {
	fx := newFixture(t, "photo-1")
	ctx := context.Background()

	if _, err := fx.dispatcher.Submit(ctx, "photo-1", false, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := fx.dispatcher.SubmitBatch(ctx, []string{"photo-2", "photo-3"}, 6, ""); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if _, err := fx.dispatcher.PauseLane("rush"); err != nil {
		t.Fatalf("PauseLane: %v", err)
	}
	if _, err := fx.dispatcher.PauseLane("bulk"); err != nil {
		t.Fatalf("PauseLane: %v", err)
	}

	stats, err := fx.dispatcher.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ByStatus[dispatch.StatusPending] != 3 {
		t.Fatalf("pending count = %d, want 3", stats.ByStatus[dispatch.StatusPending])
	}
	// photo-1 scores priority 2 from its seeded metadata; the batch pair share 6.
	if stats.ByPriority[2] != 1 || stats.ByPriority[6] != 2 {
		t.Fatalf("ByPriority = %v, want {2:1 6:2}", stats.ByPriority)
	}
	if stats.ByLane[dispatch.LaneBulk] != 1 || stats.ByLane[dispatch.LaneStandard] != 2 {
		t.Fatalf("ByLane = %v, want bulk:1 standard:2", stats.ByLane)
	}
	want := []string{"bulk", "rush"}
	if len(stats.PausedLanes) != 2 || stats.PausedLanes[0] != want[0] || stats.PausedLanes[1] != want[1] {
		t.Fatalf("PausedLanes = %v, want %v", stats.PausedLanes, want)
	}
}
