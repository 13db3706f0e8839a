// Package pipeline drives jobs through the ordered processing stages:
// download, convert, speech detection, chunked transcription, and two-pass
// summarization. A bounded pool of workers each runs one job end to end;
// within a job, stages never overlap. All persistent state lives in the
// store; the orchestrator suspends only at the external capability calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"catchup/internal/clients"
	"catchup/internal/config"
	"catchup/internal/identity"
	"catchup/internal/logging"
	"catchup/internal/services"
	"catchup/internal/store"
)

// Orchestrator owns the worker pool and the per-stage pipeline logic.
type Orchestrator struct {
	cfg    *config.Config
	store  *store.Store
	set    clients.Set
	logger *slog.Logger
}

// New constructs an orchestrator. The capability set is fixed at
// construction; fakes and real clients are interchangeable here.
func New(cfg *config.Config, st *store.Store, set clients.Set, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		store:  st,
		set:    set,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
}

// SubmitResult reports the outcome of a submission.
type SubmitResult struct {
	Lecture    *store.Lecture
	Job        *store.Job
	NewLecture bool
}

// Submit resolves a source URL into a lecture identity and enqueues a job.
// Resubmitting a known source returns the existing lecture and always
// creates a fresh job; prior artifacts are only replaced when rerun is set.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL, title, language string, rerun bool) (SubmitResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		// Best effort: provider metadata often carries the course code and
		// date the caller omitted. A failed probe degrades to URL-only
		// identity, it does not fail the submission.
		if meta, err := o.set.Downloader.Probe(ctx, sourceURL); err == nil {
			title = meta.Title
		} else {
			o.logger.Warn("metadata probe failed, deriving identity from url only",
				logging.String("url", sourceURL), logging.Error(err))
		}
	}

	id, err := identity.Resolve(identity.Source{URL: sourceURL, Title: title, Language: language})
	if err != nil {
		return SubmitResult{}, err
	}

	lecture, created, err := o.store.GetOrCreateLecture(ctx, id, title, sourceURL)
	if err != nil {
		return SubmitResult{}, err
	}

	job, err := o.store.CreateJob(ctx, lecture.LectureID, rerun)
	if err != nil {
		return SubmitResult{}, err
	}

	o.logger.Info("job submitted",
		logging.String(logging.FieldLectureID, lecture.LectureID),
		logging.String(logging.FieldJobID, job.JobID),
		logging.Bool("new_lecture", created),
		logging.Bool("rerun", rerun))
	return SubmitResult{Lecture: lecture, Job: job, NewLecture: created}, nil
}

// Run applies the restart policy, then processes queued jobs with the
// configured worker pool until the context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.applyRestartPolicy(ctx); err != nil {
		return err
	}

	workers := o.cfg.Workflow.Workers
	poll := time.Duration(o.cfg.Workflow.PollIntervalSec) * time.Second

	o.logger.Info("pipeline started",
		logging.Int("workers", workers),
		logging.Duration("poll_interval", poll))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			o.workerLoop(ctx, worker, poll)
		}(i)
	}
	wg.Wait()

	o.logger.Info("pipeline stopped")
	return nil
}

// applyRestartPolicy handles jobs a previous daemon run left mid-flight.
// Partial stage state is never resumed: a job either restarts from the
// beginning or fails, per configuration.
func (o *Orchestrator) applyRestartPolicy(ctx context.Context) error {
	requeue := o.cfg.Workflow.RestartPolicy == config.RestartRequeue
	reset, err := o.store.ResetAtStartup(ctx, requeue)
	if err != nil {
		return fmt.Errorf("apply restart policy: %w", err)
	}
	if reset > 0 {
		o.logger.Info("reset in-flight jobs from previous run",
			logging.Int64("jobs", reset),
			logging.String("policy", o.cfg.Workflow.RestartPolicy))
	}
	return nil
}

func (o *Orchestrator) workerLoop(ctx context.Context, worker int, poll time.Duration) {
	logger := o.logger.With(logging.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := o.store.ClaimQueuedJob(ctx)
		if err != nil {
			logger.Error("claim queued job", logging.Error(err))
		} else if job != nil {
			o.process(ctx, job)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
	}
}

// ProcessOne claims and fully processes a single queued job. Returns false
// when the queue is empty. Used by tests and one-shot CLI runs.
func (o *Orchestrator) ProcessOne(ctx context.Context) (bool, error) {
	job, err := o.store.ClaimQueuedJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	o.process(ctx, job)
	return true, nil
}

func (o *Orchestrator) process(ctx context.Context, job *store.Job) {
	ctx = services.WithJobID(ctx, job.JobID)
	ctx = services.WithLectureID(ctx, job.LectureID)

	env, err := o.newJobEnv(ctx, job)
	if err != nil {
		o.failJob(ctx, job, "prepare", err)
		return
	}
	defer env.close()

	logger := logging.WithContext(ctx, o.logger)
	logger.Info("job started", logging.String(logging.FieldEventType, "job_start"))

	for {
		stage, ok := stageFor(env.job.Status)
		if !ok {
			break
		}
		stageCtx := services.WithStage(ctx, string(env.job.Status))
		stageLogger := logging.WithContext(stageCtx, o.logger)

		env.log(stageLogger, slog.LevelInfo, "stage started",
			logging.String(logging.FieldEventType, "stage_start"))
		started := time.Now()

		if err := stage.run(stageCtx, o, env); err != nil {
			env.log(stageLogger, slog.LevelError, "stage failed",
				logging.String(logging.FieldEventType, "stage_failure"),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.Error(err))
			o.failJob(stageCtx, env.job, string(env.job.Status), err)
			o.registerLog(ctx, env)
			return
		}

		env.log(stageLogger, slog.LevelInfo, "stage complete",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", time.Since(started)))

		updated, err := o.store.UpdateJobStatus(ctx, env.job.JobID, stage.next, store.StatusUpdate{})
		if err != nil {
			env.log(stageLogger, slog.LevelError, "advance status", logging.Error(err))
			o.failJob(stageCtx, env.job, string(env.job.Status), err)
			o.registerLog(ctx, env)
			return
		}
		env.job = updated
	}

	o.registerLog(ctx, env)
	env.cleanupWork()
	logger.Info("job complete",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("elapsed", time.Since(env.job.StartedAt)))
}

// failJob transitions the job to error with a populated message. A failure
// to record the failure is logged and dropped; there is nothing left to
// unwind.
func (o *Orchestrator) failJob(ctx context.Context, job *store.Job, stage string, cause error) {
	message := fmt.Sprintf("%s: %v", stage, cause)
	if _, err := o.store.UpdateJobStatus(ctx, job.JobID, store.StatusError, store.StatusUpdate{
		ErrorMessage: message,
	}); err != nil && !errors.Is(err, store.ErrConflict) {
		logging.WithContext(ctx, o.logger).Error("record job failure", logging.Error(err))
	}
}

func (o *Orchestrator) registerLog(ctx context.Context, env *jobEnv) {
	if env.logPath == "" {
		return
	}
	if _, err := o.store.RegisterArtifact(ctx, env.job.LectureID, env.job.JobID,
		store.ArtifactLog, env.logPath, env.job.Rerun); err != nil {
		logging.WithContext(ctx, o.logger).Warn("register log artifact", logging.Error(err))
	}
}
