package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RegisterArtifact records a produced file. Rows are append-only: a new row
// never updates or removes prior ones. With rerun set, existing rows for the
// same (lecture_id, type) are removed first so the new row replaces history.
func (s *Store) RegisterArtifact(ctx context.Context, lectureID, jobID string, artifactType ArtifactType, path string, rerun bool) (*Artifact, error) {
	ctx = ensureContext(ctx)
	if !ValidArtifactType(artifactType) {
		return nil, fmt.Errorf("unknown artifact type %q", artifactType)
	}

	artifact := &Artifact{
		LectureID: lectureID,
		JobID:     jobID,
		Type:      artifactType,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if rerun {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM artifacts WHERE lecture_id = ? AND type = ?`,
				lectureID, string(artifactType),
			); err != nil {
				return fmt.Errorf("clear prior artifacts: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (lecture_id, job_id, type, path, created_at) VALUES (?, ?, ?, ?, ?)`,
			lectureID, jobID, string(artifactType), path, formatTime(artifact.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert artifact: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("artifact id: %w", err)
		}
		artifact.ArtifactID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// ArtifactsForJob lists every artifact registered by one job, oldest first.
func (s *Store) ArtifactsForJob(ctx context.Context, jobID string) ([]*Artifact, error) {
	ctx = ensureContext(ctx)
	return s.queryArtifacts(ctx,
		selectArtifactSQL+` WHERE job_id = ? ORDER BY artifact_id`, jobID)
}

// LatestArtifacts returns the most recent artifact of each type for a
// lecture, the derived "current outputs" view over the append-only history.
func (s *Store) LatestArtifacts(ctx context.Context, lectureID string) (map[ArtifactType]*Artifact, error) {
	ctx = ensureContext(ctx)
	artifacts, err := s.queryArtifacts(ctx,
		selectArtifactSQL+` WHERE lecture_id = ? ORDER BY artifact_id`, lectureID)
	if err != nil {
		return nil, err
	}
	latest := make(map[ArtifactType]*Artifact, len(artifacts))
	for _, artifact := range artifacts {
		latest[artifact.Type] = artifact
	}
	return latest, nil
}

func (s *Store) queryArtifacts(ctx context.Context, query string, args ...any) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

const selectArtifactSQL = `SELECT artifact_id, lecture_id, job_id, type, path, created_at FROM artifacts`

func scanArtifact(row rowScanner) (*Artifact, error) {
	var (
		artifact  Artifact
		rawType   string
		createdAt sql.NullString
	)
	if err := row.Scan(
		&artifact.ArtifactID,
		&artifact.LectureID,
		&artifact.JobID,
		&rawType,
		&artifact.Path,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	artifact.Type = ArtifactType(rawType)
	artifact.CreatedAt = parseTime(createdAt)
	return &artifact, nil
}
