package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"catchup/internal/clients"
	"catchup/internal/logging"
	"catchup/internal/stitch"
	"catchup/internal/store"
)

// jobEnv carries one job's state between stages: the lecture, the evolving
// job row, its on-disk layout, scratch space, and the intermediate outputs
// each stage hands to the next.
type jobEnv struct {
	lecture *store.Lecture
	job     *store.Job
	dirs    store.LectureDirs
	workDir string

	logPath string
	logFile *os.File
	jobLog  *slog.Logger

	metadata  clients.Metadata
	mediaPath string

	audioPath string
	duration  float64

	plan    *stitch.Plan
	vadPath string

	transcript       string
	detectedLanguage string
}

func (o *Orchestrator) newJobEnv(ctx context.Context, job *store.Job) (*jobEnv, error) {
	lecture, err := o.store.LectureByID(ctx, job.LectureID)
	if err != nil {
		return nil, err
	}

	dirs := store.DirsFor(o.cfg.Paths.DataDir, lecture, job.JobID)
	if err := dirs.Ensure(lecture.SourceURL); err != nil {
		return nil, err
	}

	workDir := filepath.Join(o.cfg.Paths.WorkDir, job.JobID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	env := &jobEnv{
		lecture: lecture,
		job:     job,
		dirs:    dirs,
		workDir: workDir,
		logPath: dirs.PathFor(store.ArtifactLog),
	}

	logFile, err := os.OpenFile(env.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}
	env.logFile = logFile
	env.jobLog = logging.NewWriterLogger(logFile, "debug")
	return env, nil
}

// log writes to both the daemon logger and the per-job pipeline log.
func (e *jobEnv) log(logger *slog.Logger, level slog.Level, msg string, attrs ...logging.Attr) {
	args := logging.Args(attrs...)
	logger.Log(context.Background(), level, msg, args...)
	if e.jobLog != nil {
		e.jobLog.Log(context.Background(), level, msg, args...)
	}
}

func (e *jobEnv) close() {
	if e.logFile != nil {
		_ = e.logFile.Close()
	}
}

// cleanupWork drops the job's scratch directory. Only called on success;
// failed jobs keep their scratch files for inspection.
func (e *jobEnv) cleanupWork() {
	if e.workDir != "" {
		_ = os.RemoveAll(e.workDir)
	}
}

// saveArtifact registers a produced file in the store at its run-scoped
// location. The rerun flag of the owning job controls whether prior history
// for the artifact type is replaced.
func (o *Orchestrator) saveArtifact(ctx context.Context, env *jobEnv, t store.ArtifactType, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("artifact %s missing at %s: %w", t, path, err)
	}
	if _, err := o.store.RegisterArtifact(ctx, env.job.LectureID, env.job.JobID, t, path, env.job.Rerun); err != nil {
		return fmt.Errorf("register artifact %s: %w", t, err)
	}
	return nil
}
