package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"darkroom/internal/config"
	"darkroom/internal/priority"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JobDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert persists a new job record.
func (s *Store) Insert(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, unit_id, group_id, priority, lane, status, retry_count,
            config_json, handle, origin_job_id, error_message,
            created_at, started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.UnitID,
		nullableString(job.GroupID),
		job.Priority,
		string(job.Lane),
		string(job.Status),
		job.RetryCount,
		nullableString(job.ConfigJSON),
		nullableString(job.BackendHandle),
		nullableString(job.OriginJobID),
		nullableString(job.ErrorMessage),
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier. Unknown ids yield (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job record.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET unit_id = ?, group_id = ?, priority = ?, lane = ?, status = ?,
             retry_count = ?, config_json = ?, handle = ?, origin_job_id = ?,
             error_message = ?, started_at = ?, completed_at = ?
         WHERE id = ?`,
		job.UnitID,
		nullableString(job.GroupID),
		job.Priority,
		string(job.Lane),
		string(job.Status),
		job.RetryCount,
		nullableString(job.ConfigJSON),
		nullableString(job.BackendHandle),
		nullableString(job.OriginJobID),
		nullableString(job.ErrorMessage),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListByStatus returns jobs matching a status ordered by creation time.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListHeld returns pending jobs in a lane that were never handed to the
// backend, oldest first.
func (s *Store) ListHeld(ctx context.Context, lane Lane) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE lane = ? AND status = ? AND (handle IS NULL OR handle = '')
         ORDER BY created_at`,
		string(lane),
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query held jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListPending exposes pending jobs to the priority calculator.
func (s *Store) ListPending(ctx context.Context) ([]priority.PendingUnit, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT unit_id, priority, group_id, created_at FROM jobs WHERE status = ? ORDER BY created_at`,
		string(StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending units: %w", err)
	}
	defer rows.Close()

	var units []priority.PendingUnit
	for rows.Next() {
		var (
			unit       priority.PendingUnit
			groupID    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&unit.UnitID, &unit.Priority, &groupID, &createdRaw); err != nil {
			return nil, err
		}
		unit.GroupID = groupID.String
		if created, err := parseTimeString(createdRaw); err == nil {
			unit.EnqueuedAt = created
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// SetPriority updates the stored priority of a unit's pending jobs.
func (s *Store) SetPriority(ctx context.Context, unitID string, prio int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET priority = ? WHERE unit_id = ? AND status = ?`,
		prio,
		unitID,
		string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return nil
}

// StatusCounts returns a count of jobs grouped by status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// PriorityCounts returns a count of non-terminal jobs grouped by priority.
func (s *Store) PriorityCounts(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT priority, COUNT(1) FROM jobs WHERE status IN (?, ?) GROUP BY priority`,
		string(StatusPending),
		string(StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("priority counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var prio, count int
		if err := rows.Scan(&prio, &count); err != nil {
			return nil, err
		}
		counts[prio] = count
	}
	return counts, rows.Err()
}

// LaneCounts returns a count of non-terminal jobs grouped by lane.
func (s *Store) LaneCounts(ctx context.Context) (map[Lane]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT lane, COUNT(1) FROM jobs WHERE status IN (?, ?) GROUP BY lane`,
		string(StatusPending),
		string(StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("lane counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Lane]int)
	for rows.Next() {
		var lane Lane
		var count int
		if err := rows.Scan(&lane, &count); err != nil {
			return nil, err
		}
		counts[lane] = count
	}
	return counts, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes completed, failed, and cancelled jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		string(StatusCompleted),
		string(StatusFailed),
		string(StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, unit_id, group_id, priority, lane, status, retry_count, config_json, handle, origin_job_id, error_message, created_at, started_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		unitID       string
		groupID      sql.NullString
		prio         int
		laneStr      string
		statusStr    string
		retryCount   int
		configJSON   sql.NullString
		handle       sql.NullString
		originJobID  sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&unitID,
		&groupID,
		&prio,
		&laneStr,
		&statusStr,
		&retryCount,
		&configJSON,
		&handle,
		&originJobID,
		&errorMessage,
		&createdRaw,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            id,
		UnitID:        unitID,
		GroupID:       groupID.String,
		Priority:      prio,
		Lane:          Lane(laneStr),
		Status:        Status(statusStr),
		RetryCount:    retryCount,
		ConfigJSON:    configJSON.String,
		BackendHandle: handle.String,
		OriginJobID:   originJobID.String,
		ErrorMessage:  errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
