package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/audio-scribe/backend/internal/metrics"
)

// ErrNotFound is returned when no job has the given ID.
var ErrNotFound = errors.New("job not found")

// interruptedMessage is recorded on jobs the process stopped mid-flight.
const interruptedMessage = "interrupted: the server stopped before this job finished"

// ErrorMessage turns a handler error into the text stored on the job.
type ErrorMessage func(error) string

// Cleanup releases what a job owns (its upload) when the job ends without its
// handler running. It must tolerate being called more than once.
type Cleanup func(job *Job)

// JobQueue manages job persistence and dispatching
type JobQueue struct {
	db       *sql.DB
	mu       sync.RWMutex
	pending  chan string // job IDs to process
	cancels  map[string]context.CancelFunc
	handlers map[JobType]JobHandler
	cleanups map[JobType]Cleanup
	message  ErrorMessage
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJobQueue creates and starts a new job queue. Jobs left pending or
// running by a previous process are marked failed, not resumed.
func NewJobQueue(db *sql.DB, m *metrics.Metrics, logger *zap.SugaredLogger) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		db:       db,
		pending:  make(chan string, 100),
		cancels:  make(map[string]context.CancelFunc),
		handlers: make(map[JobType]JobHandler),
		cleanups: make(map[JobType]Cleanup),
		message:  func(err error) string { return err.Error() },
		metrics:  m,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	q.failInterrupted()

	go q.worker()

	return q
}

// RegisterHandler registers a handler for a job type
func (q *JobQueue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// RegisterCleanup registers the release hook for a job type
func (q *JobQueue) RegisterCleanup(jobType JobType, fn Cleanup) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleanups[jobType] = fn
}

func (q *JobQueue) cleanup(job *Job) {
	q.mu.RLock()
	fn, ok := q.cleanups[job.Type]
	q.mu.RUnlock()
	if ok {
		fn(job)
	}
}

// SetErrorMessage replaces the formatter used for failed jobs.
func (q *JobQueue) SetErrorMessage(fn ErrorMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.message = fn
}

// Enqueue creates a new job and adds it to the queue
func (q *JobQueue) Enqueue(jobType JobType, filePath string, params interface{}) (*Job, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusPending,
		FilePath:  filePath,
		Params:    paramsJSON,
		Progress:  0,
		CreatedAt: time.Now(),
	}

	_, err = q.db.Exec(`
		INSERT INTO jobs (id, type, status, file_path, params, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, job.FilePath, string(job.Params), job.Progress, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	select {
	case q.pending <- job.ID:
	default:
		q.failJob(job, "queue is full, try again later")
		return nil, fmt.Errorf("queue full")
	}

	q.logger.Infow("job enqueued", "job", job.ID, "type", job.Type, "file", filePath)
	return job, nil
}

const jobColumns = `id, type, status, file_path, params, progress, result, error, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	var params, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(&job.ID, &job.Type, &job.Status, &job.FilePath, &params, &job.Progress,
		&result, &errMsg, &job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	if params.Valid {
		job.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	job, err := scanJob(q.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns all jobs ordered by creation time (newest first)
func (q *JobQueue) ListJobs() ([]*Job, error) {
	rows, err := q.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CancelJob cancels a pending or running job. A running job's handler
// releases its own resources; a pending job is released here since its
// handler never runs.
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.GetJob(id)
	if err != nil {
		return err
	}

	now := time.Now()
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusCancelled, now, id, StatusPending,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		q.cleanup(job)
		q.metrics.RecordJobFinished(string(StatusCancelled))
		q.logger.Infow("pending job cancelled", "job", id)
		return nil
	}

	res, err = q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusCancelled, now, id, StatusRunning,
	)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if cancelFn, ok := q.cancels[id]; ok {
		cancelFn()
		delete(q.cancels, id)
	}
	q.mu.Unlock()

	if n, _ := res.RowsAffected(); n > 0 {
		q.metrics.RecordJobFinished(string(StatusCancelled))
		q.logger.Infow("job cancelled", "job", id)
	}
	return nil
}

// UpdateProgress updates the progress of a running job
func (q *JobQueue) UpdateProgress(id string, progress int) {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}
	// progress never moves backwards
	if _, err := q.db.Exec("UPDATE jobs SET progress = ? WHERE id = ? AND progress <= ?", progress, id, progress); err != nil {
		q.logger.Warnw("failed to update progress", "job", id, "error", err)
	}
}

// Stop cancels the running job and waits for the worker to exit
func (q *JobQueue) Stop() {
	q.cancel()
	<-q.done
}

// worker processes jobs from the pending channel one at a time
func (q *JobQueue) worker() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID := <-q.pending:
			q.processJob(jobID)
		}
	}
}

// processJob runs a single job
func (q *JobQueue) processJob(jobID string) {
	job, err := q.GetJob(jobID)
	if err != nil {
		q.logger.Errorw("failed to load job", "job", jobID, "error", err)
		return
	}

	if job.Status != StatusPending {
		q.cleanup(job)
		return
	}

	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		q.failJob(job, fmt.Sprintf("no handler for job type: %s", job.Type))
		q.cleanup(job)
		return
	}

	now := time.Now()
	res, err := q.db.Exec("UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		StatusRunning, now, job.ID, StatusPending)
	if err != nil {
		q.logger.Errorw("failed to start job", "job", job.ID, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// cancelled between enqueue and pickup
		q.cleanup(job)
		return
	}
	job.StartedAt = &now
	job.Status = StatusRunning

	ctx, cancelFn := context.WithCancel(q.ctx)
	q.mu.Lock()
	q.cancels[job.ID] = cancelFn
	q.mu.Unlock()

	q.logger.Infow("job started", "job", job.ID, "type", job.Type)

	updateProgress := func(progress int) {
		q.UpdateProgress(job.ID, progress)
	}

	// The handler owns cleanup of the upload, so wait for it to return even
	// after cancellation.
	err = handler(ctx, job, updateProgress)

	switch {
	case err == nil:
		q.completeJob(job)
	case q.ctx.Err() != nil:
		q.failJob(job, interruptedMessage)
	case ctx.Err() != nil:
		// CancelJob already recorded the status
	default:
		q.mu.RLock()
		msg := q.message(err)
		q.mu.RUnlock()
		q.logger.Warnw("job handler failed", "job", job.ID, "error", err)
		q.failJob(job, msg)
	}

	q.mu.Lock()
	delete(q.cancels, job.ID)
	q.mu.Unlock()
	cancelFn()
}

func (q *JobQueue) completeJob(job *Job) {
	now := time.Now()
	var result interface{}
	if len(job.Result) > 0 {
		result = string(job.Result)
	}
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, progress = 100, result = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, result, now, job.ID, StatusRunning)
	if err != nil {
		q.logger.Errorw("failed to complete job", "job", job.ID, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}
	q.metrics.RecordJobFinished(string(StatusCompleted))
	q.logger.Infow("job completed", "job", job.ID)
}

func (q *JobQueue) failJob(job *Job, errMsg string) {
	now := time.Now()
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, errMsg, now, job.ID, StatusPending, StatusRunning)
	if err != nil {
		q.logger.Errorw("failed to mark job failed", "job", job.ID, "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}
	q.metrics.RecordJobFinished(string(StatusFailed))
	q.logger.Warnw("job failed", "job", job.ID, "reason", errMsg)
}

// failInterrupted marks jobs a previous process left unfinished as failed
func (q *JobQueue) failInterrupted() {
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE status IN (?, ?)`,
		StatusFailed, interruptedMessage, time.Now(), StatusPending, StatusRunning)
	if err != nil {
		q.logger.Errorw("failed to clear interrupted jobs", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		q.logger.Warnw("marked interrupted jobs as failed", "count", n)
	}
}
