package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"catchup/internal/identity"
	"catchup/internal/store"
	"catchup/internal/testsupport"
)

func resolveTestIdentity(t *testing.T, url, title string) identity.Identity {
	t.Helper()
	id, err := identity.Resolve(identity.Source{URL: url, Title: title})
	if err != nil {
		t.Fatalf("resolve identity: %v", err)
	}
	return id
}

func TestGetOrCreateLectureIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := resolveTestIdentity(t, "https://videos.example.edu/watch/lecture-1", "ELE130 2024-09-02")

	first, created, err := st.GetOrCreateLecture(ctx, id, "ELE130 2024-09-02", "https://videos.example.edu/watch/lecture-1")
	if err != nil {
		t.Fatalf("first get-or-create: %v", err)
	}
	if !created {
		t.Fatal("first call should create the lecture")
	}

	second, created, err := st.GetOrCreateLecture(ctx, id, "different title", "https://videos.example.edu/watch/lecture-1")
	if err != nil {
		t.Fatalf("second get-or-create: %v", err)
	}
	if created {
		t.Fatal("second call must not create a new lecture")
	}
	if second.LectureID != first.LectureID {
		t.Fatalf("lecture ids differ: %q vs %q", second.LectureID, first.LectureID)
	}
	if second.Title != first.Title {
		t.Fatal("existing lecture row was mutated")
	}
}

func TestGetOrCreateLectureConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := resolveTestIdentity(t, "https://videos.example.edu/watch/lecture-2", "MAT200 02.09.2024")

	const callers = 8
	results := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			lecture, _, err := st.GetOrCreateLecture(ctx, id, "MAT200 02.09.2024", "https://videos.example.edu/watch/lecture-2")
			if err != nil {
				errs <- err
				return
			}
			results <- lecture.LectureID
		}()
	}

	seen := map[string]struct{}{}
	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent get-or-create: %v", err)
		case lectureID := <-results:
			seen[lectureID] = struct{}{}
		}
	}
	if len(seen) != 1 {
		t.Fatalf("racing callers observed %d distinct lectures", len(seen))
	}
}

func newLectureAndJob(t *testing.T, st *store.Store) (*store.Lecture, *store.Job) {
	t.Helper()
	ctx := context.Background()
	id := resolveTestIdentity(t, "https://videos.example.edu/watch/"+t.Name(), "ELE130 2024-09-02 "+t.Name())
	lecture, _, err := st.GetOrCreateLecture(ctx, id, id.LectureID, "https://videos.example.edu/watch/"+t.Name())
	if err != nil {
		t.Fatalf("create lecture: %v", err)
	}
	job, err := st.CreateJob(ctx, lecture.LectureID, false)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return lecture, job
}

func TestUpdateJobStatusEnforcesTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	_, job := newLectureAndJob(t, st)

	// Skipping a stage is illegal.
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusConverting, store.StatusUpdate{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("queued -> converting: error = %v, want ErrConflict", err)
	}

	updated, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusDownloading, store.StatusUpdate{})
	if err != nil {
		t.Fatalf("queued -> downloading: %v", err)
	}
	if updated.StartedAt.IsZero() {
		t.Fatal("started_at not stamped when leaving queued")
	}
	if updated.Progress != store.ProgressFor(store.StatusDownloading) {
		t.Fatalf("progress = %v, want %v", updated.Progress, store.ProgressFor(store.StatusDownloading))
	}

	for _, next := range []store.Status{
		store.StatusConverting,
		store.StatusVAD,
		store.StatusTranscribing,
		store.StatusSummarizing,
		store.StatusDone,
	} {
		if updated, err = st.UpdateJobStatus(ctx, job.JobID, next, store.StatusUpdate{}); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if updated.FinishedAt.IsZero() {
		t.Fatal("finished_at not stamped on terminal status")
	}
	if updated.Progress != 1.0 {
		t.Fatalf("done progress = %v, want 1.0", updated.Progress)
	}

	// Terminal statuses admit no further transitions.
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusError, store.StatusUpdate{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("done -> error: error = %v, want ErrConflict", err)
	}
}

func TestUpdateJobStatusErrorFromAnyNonTerminal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	_, job := newLectureAndJob(t, st)

	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusDownloading, store.StatusUpdate{}); err != nil {
		t.Fatalf("queued -> downloading: %v", err)
	}
	failed, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusError, store.StatusUpdate{ErrorMessage: "download: boom"})
	if err != nil {
		t.Fatalf("downloading -> error: %v", err)
	}
	if failed.ErrorMessage != "download: boom" {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}
	if failed.FinishedAt.IsZero() {
		t.Fatal("finished_at not stamped on error")
	}
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusQueued, store.StatusUpdate{}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error -> queued: error = %v, want ErrConflict", err)
	}
}

func TestClaimQueuedJobTakesOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lecture, first := newLectureAndJob(t, st)
	second, err := st.CreateJob(ctx, lecture.LectureID, false)
	if err != nil {
		t.Fatalf("create second job: %v", err)
	}

	claimed, err := st.ClaimQueuedJob(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.JobID != first.JobID {
		t.Fatalf("claimed %+v, want oldest job %s", claimed, first.JobID)
	}
	if claimed.Status != store.StatusDownloading {
		t.Fatalf("claimed status = %s, want downloading", claimed.Status)
	}

	claimed, err = st.ClaimQueuedJob(ctx)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if claimed == nil || claimed.JobID != second.JobID {
		t.Fatalf("second claim = %+v, want %s", claimed, second.JobID)
	}

	claimed, err = st.ClaimQueuedJob(ctx)
	if err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if claimed != nil {
		t.Fatalf("claim on empty queue returned %+v", claimed)
	}
}

func TestRegisterArtifactAppendsAndRerunReplaces(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lecture, job := newLectureAndJob(t, st)

	if _, err := st.RegisterArtifact(ctx, lecture.LectureID, job.JobID, store.ArtifactSummaryMD, "/a/summary_v1.md", false); err != nil {
		t.Fatalf("register first: %v", err)
	}
	if _, err := st.RegisterArtifact(ctx, lecture.LectureID, job.JobID, store.ArtifactSummaryMD, "/a/summary_v2.md", false); err != nil {
		t.Fatalf("register second: %v", err)
	}

	history, err := st.ArtifactsForJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("artifacts for job: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("append-only history has %d rows, want 2", len(history))
	}

	latest, err := st.LatestArtifacts(ctx, lecture.LectureID)
	if err != nil {
		t.Fatalf("latest artifacts: %v", err)
	}
	if latest[store.ArtifactSummaryMD].Path != "/a/summary_v2.md" {
		t.Fatalf("latest path = %q, want v2", latest[store.ArtifactSummaryMD].Path)
	}

	// An explicit rerun replaces the history for the type.
	if _, err := st.RegisterArtifact(ctx, lecture.LectureID, job.JobID, store.ArtifactSummaryMD, "/a/summary_v3.md", true); err != nil {
		t.Fatalf("register rerun: %v", err)
	}
	history, err = st.ArtifactsForJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("artifacts after rerun: %v", err)
	}
	if len(history) != 1 || history[0].Path != "/a/summary_v3.md" {
		t.Fatalf("rerun did not replace history: %+v", history)
	}

	if _, err := st.RegisterArtifact(ctx, lecture.LectureID, job.JobID, store.ArtifactType("bogus"), "/a/x", false); err == nil {
		t.Fatal("expected rejection of unknown artifact type")
	}
}

func TestResetAtStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lecture, inFlight := newLectureAndJob(t, st)
	if _, err := st.UpdateJobStatus(ctx, inFlight.JobID, store.StatusDownloading, store.StatusUpdate{}); err != nil {
		t.Fatalf("advance job: %v", err)
	}
	queued, err := st.CreateJob(ctx, lecture.LectureID, false)
	if err != nil {
		t.Fatalf("create queued job: %v", err)
	}

	reset, err := st.ResetAtStartup(ctx, true)
	if err != nil {
		t.Fatalf("reset at startup: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset %d jobs, want 1", reset)
	}

	requeued, err := st.JobByID(ctx, inFlight.JobID)
	if err != nil {
		t.Fatalf("load requeued job: %v", err)
	}
	if requeued.Status != store.StatusQueued || requeued.Progress != 0 {
		t.Fatalf("requeued job = %s progress %v", requeued.Status, requeued.Progress)
	}

	untouched, err := st.JobByID(ctx, queued.JobID)
	if err != nil {
		t.Fatalf("load queued job: %v", err)
	}
	if untouched.Status != store.StatusQueued {
		t.Fatalf("queued job changed to %s", untouched.Status)
	}
}

func TestResetAtStartupFailPolicy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	_, job := newLectureAndJob(t, st)
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusDownloading, store.StatusUpdate{}); err != nil {
		t.Fatalf("advance job: %v", err)
	}

	if _, err := st.ResetAtStartup(ctx, false); err != nil {
		t.Fatalf("reset at startup: %v", err)
	}
	failed, err := st.JobByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if failed.Status != store.StatusError || failed.ErrorMessage == "" {
		t.Fatalf("job = %s %q, want error with message", failed.Status, failed.ErrorMessage)
	}
}

func TestRequeueFailedLectures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	lecture, job := newLectureAndJob(t, st)
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusDownloading, store.StatusUpdate{}); err != nil {
		t.Fatalf("advance job: %v", err)
	}
	if _, err := st.UpdateJobStatus(ctx, job.JobID, store.StatusError, store.StatusUpdate{ErrorMessage: "boom"}); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	jobs, err := st.RequeueFailedLectures(ctx)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].LectureID != lecture.LectureID {
		t.Fatalf("unexpected requeued jobs: %+v", jobs)
	}
	if jobs[0].Status != store.StatusQueued {
		t.Fatalf("new job status = %s", jobs[0].Status)
	}

	// The old error job stays as history.
	history, err := st.JobsForLecture(ctx, lecture.LectureID)
	if err != nil {
		t.Fatalf("jobs for lecture: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("lecture has %d jobs, want 2", len(history))
	}
}

func TestLectureDirsLayout(t *testing.T) {
	dataDir := t.TempDir()
	lecture := &store.Lecture{
		CourseCode:  "ELE130",
		LectureDate: "2024-09-02",
		UIDShort:    "3f2504e0",
		SourceURL:   "https://videos.example.edu/watch/lecture-1",
	}
	jobID := "c9d3a2b1-4f89-11d3-9a0c-0305e82c3301"
	dirs := store.DirsFor(dataDir, lecture, jobID)
	if err := dirs.Ensure(lecture.SourceURL); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	wantRoot := filepath.Join(dataDir, "ELE130", "2024-09-02", "3f2504e0")
	if dirs.Root != wantRoot {
		t.Fatalf("root = %q, want %q", dirs.Root, wantRoot)
	}
	wantRun := filepath.Join(wantRoot, "runs", "c9d3a2b1")
	if dirs.Run != wantRun {
		t.Fatalf("run = %q, want %q", dirs.Run, wantRun)
	}
	for _, dir := range []string{dirs.Run, dirs.Transcript, dirs.Summary, dirs.Logs} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("missing layout directory %q: %v", dir, err)
		}
	}
	marker, err := os.ReadFile(filepath.Join(dirs.Root, "source_url.txt"))
	if err != nil {
		t.Fatalf("read source marker: %v", err)
	}
	if string(marker) != lecture.SourceURL+"\n" {
		t.Fatalf("marker content %q", marker)
	}
	if dirs.PathFor(store.ArtifactSummaryMD) != filepath.Join(dirs.Summary, "summary.md") {
		t.Fatalf("unexpected summary path %q", dirs.PathFor(store.ArtifactSummaryMD))
	}
}

func TestLectureDirsScopedPerJob(t *testing.T) {
	dataDir := t.TempDir()
	lecture := &store.Lecture{
		CourseCode:  "MAT200",
		LectureDate: "2024-09-03",
		UIDShort:    "5b1d0c9e",
		SourceURL:   "https://videos.example.edu/watch/lecture-2",
	}
	first := store.DirsFor(dataDir, lecture, "11111111-aaaa-bbbb-cccc-000000000001")
	second := store.DirsFor(dataDir, lecture, "22222222-aaaa-bbbb-cccc-000000000002")

	if first.Root != second.Root {
		t.Fatalf("runs of one lecture split across roots: %q vs %q", first.Root, second.Root)
	}
	if first.Run == second.Run {
		t.Fatalf("distinct jobs share run directory %q", first.Run)
	}
	for _, artifactType := range []store.ArtifactType{
		store.ArtifactMetadataJSON,
		store.ArtifactSummaryMD,
		store.ArtifactLog,
	} {
		if first.PathFor(artifactType) == second.PathFor(artifactType) {
			t.Fatalf("distinct jobs share %s path %q", artifactType, first.PathFor(artifactType))
		}
	}
}
