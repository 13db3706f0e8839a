package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts a new queued job for the lecture. rerun marks an
// explicit reprocessing request whose artifacts replace the lecture's
// history instead of appending to it.
func (s *Store) CreateJob(ctx context.Context, lectureID string, rerun bool) (*Job, error) {
	ctx = ensureContext(ctx)
	job := &Job{
		JobID:     uuid.NewString(),
		LectureID: lectureID,
		Status:    StatusQueued,
		Progress:  0,
		Rerun:     rerun,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (job_id, lecture_id, status, progress, rerun, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		job.JobID, job.LectureID, string(job.Status), job.Progress, boolInt(job.Rerun), formatTime(job.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// UpdateJobProgress records intra-stage progress without changing status.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, progress float64) error {
	ctx = ensureContext(ctx)
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET progress = ? WHERE job_id = ?`, progress, jobID)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

// StatusUpdate carries optional fields accompanying a status transition.
type StatusUpdate struct {
	Progress     *float64
	ErrorMessage string
}

// UpdateJobStatus moves a job to newStatus, enforcing the legal transition
// table. Illegal transitions return ErrConflict and leave the row untouched.
// Progress defaults to the entering status's canonical value; started_at is
// stamped when leaving queued and finished_at on reaching a terminal status.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, newStatus Status, update StatusUpdate) (*Job, error) {
	ctx = ensureContext(ctx)
	var updated *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectJobSQL+` WHERE job_id = ?`, jobID)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if !CanTransition(job.Status, newStatus) {
			return fmt.Errorf("%w: job %s cannot move %s -> %s", ErrConflict, jobID, job.Status, newStatus)
		}

		progress := ProgressFor(newStatus)
		if update.Progress != nil {
			progress = *update.Progress
		}
		if newStatus == StatusError {
			progress = job.Progress
		}

		now := time.Now().UTC()
		startedAt := job.StartedAt
		if job.Status == StatusQueued && startedAt.IsZero() {
			startedAt = now
		}
		finishedAt := job.FinishedAt
		if newStatus.IsTerminal() {
			finishedAt = now
		}

		errMsg := strings.TrimSpace(update.ErrorMessage)
		if newStatus != StatusError {
			errMsg = ""
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = ?, error_message = ?, started_at = ?, finished_at = ? WHERE job_id = ?`,
			string(newStatus), progress, nullString(errMsg),
			nullTime(startedAt), nullTime(finishedAt), jobID,
		); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}

		job.Status = newStatus
		job.Progress = progress
		job.ErrorMessage = errMsg
		job.StartedAt = startedAt
		job.FinishedAt = finishedAt
		updated = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ClaimQueuedJob atomically takes the oldest queued job and moves it to
// downloading. Returns nil when no queued work exists.
func (s *Store) ClaimQueuedJob(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	var claimed *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			selectJobSQL+` WHERE status = ? ORDER BY created_at LIMIT 1`, string(StatusQueued))
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, progress = ?, started_at = ? WHERE job_id = ? AND status = ?`,
			string(StatusDownloading), ProgressFor(StatusDownloading),
			formatTime(now), job.JobID, string(StatusQueued),
		)
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil || rows == 0 {
			return nil
		}

		job.Status = StatusDownloading
		job.Progress = ProgressFor(StatusDownloading)
		job.StartedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// JobByID fetches one job.
func (s *Store) JobByID(ctx context.Context, jobID string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectJobSQL+` WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, err
}

// JobsForLecture lists every processing attempt for a lecture, oldest first.
func (s *Store) JobsForLecture(ctx context.Context, lectureID string) ([]*Job, error) {
	ctx = ensureContext(ctx)
	return s.queryJobs(ctx, selectJobSQL+` WHERE lecture_id = ? ORDER BY created_at`, lectureID)
}

// ListJobs returns jobs filtered by status; an empty filter returns all.
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		return s.queryJobs(ctx, selectJobSQL+` ORDER BY created_at`)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return s.queryJobs(ctx, selectJobSQL+` WHERE status IN (`+placeholders+`) ORDER BY created_at`, args...)
}

// JobStats aggregates job counts by status.
func (s *Store) JobStats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByStatus: make(map[Status]int)}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		if status, ok := ParseStatus(raw); ok {
			stats.ByStatus[status] = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

// ResetAtStartup applies the restart policy to jobs left mid-flight by a
// previous daemon run: non-terminal, non-queued jobs are either re-queued
// from the beginning or failed. This deliberately bypasses the transition
// table; it runs before any worker starts.
func (s *Store) ResetAtStartup(ctx context.Context, requeue bool) (int64, error) {
	ctx = ensureContext(ctx)
	inFlight := []any{
		string(StatusDownloading),
		string(StatusConverting),
		string(StatusVAD),
		string(StatusTranscribing),
		string(StatusSummarizing),
	}

	var (
		query string
		args  []any
	)
	if requeue {
		query = `UPDATE jobs SET status = ?, progress = 0, error_message = NULL, started_at = NULL, finished_at = NULL
                 WHERE status IN (?, ?, ?, ?, ?)`
		args = append([]any{string(StatusQueued)}, inFlight...)
	} else {
		query = `UPDATE jobs SET status = ?, error_message = ?, finished_at = ?
                 WHERE status IN (?, ?, ?, ?, ?)`
		args = append([]any{
			string(StatusError),
			"interrupted by daemon restart",
			formatTime(time.Now()),
		}, inFlight...)
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

// RequeueFailedLectures creates fresh queued jobs for every lecture whose
// most recent job ended in error. Returns the new jobs.
func (s *Store) RequeueFailedLectures(ctx context.Context) ([]*Job, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT j.lecture_id FROM jobs j
         JOIN (SELECT lecture_id, MAX(created_at) AS latest FROM jobs GROUP BY lecture_id) m
           ON j.lecture_id = m.lecture_id AND j.created_at = m.latest
         WHERE j.status = ?`, string(StatusError))
	if err != nil {
		return nil, fmt.Errorf("find failed lectures: %w", err)
	}
	var lectureIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan lecture id: %w", err)
		}
		lectureIDs = append(lectureIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	jobs := make([]*Job, 0, len(lectureIDs))
	for _, lectureID := range lectureIDs {
		job, err := s.CreateJob(ctx, lectureID, false)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

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

const selectJobSQL = `SELECT job_id, lecture_id, status, progress, rerun, error_message, created_at, started_at, finished_at FROM jobs`

func scanJob(row rowScanner) (*Job, error) {
	var (
		job        Job
		rawStatus  string
		rerun      int
		errMsg     sql.NullString
		createdAt  sql.NullString
		startedAt  sql.NullString
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&job.JobID,
		&job.LectureID,
		&rawStatus,
		&job.Progress,
		&rerun,
		&errMsg,
		&createdAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	status, ok := ParseStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("job %s has unknown status %q", job.JobID, rawStatus)
	}
	job.Status = status
	job.Rerun = rerun != 0
	if errMsg.Valid {
		job.ErrorMessage = errMsg.String
	}
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseTime(startedAt)
	job.FinishedAt = parseTime(finishedAt)
	return &job, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
