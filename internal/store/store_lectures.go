package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catchup/internal/identity"
)

// GetOrCreateLecture looks up the lecture by source_uid and returns it if
// present, else inserts a new row built from the resolved identity. Two
// callers racing on the same source_uid both observe the single winning row.
func (s *Store) GetOrCreateLecture(ctx context.Context, id identity.Identity, title, sourceURL string) (*Lecture, bool, error) {
	ctx = ensureContext(ctx)
	var (
		lecture *Lecture
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lectures (lecture_id, course_code, lecture_date, title, source_url, source_uid, uid_short, language, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(source_uid) DO NOTHING`,
			id.LectureID, id.CourseCode, id.LectureDate, title, sourceURL,
			id.SourceUID, id.UIDShort, id.Language, formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("insert lecture: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil && rows > 0 {
			created = true
		}

		row := tx.QueryRowContext(ctx, selectLectureSQL+` WHERE source_uid = ?`, id.SourceUID)
		scanned, err := scanLecture(row)
		if err != nil {
			return fmt.Errorf("load lecture after upsert: %w", err)
		}
		lecture = scanned
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return lecture, created, nil
}

// LectureByID fetches one lecture by its derived identifier.
func (s *Store) LectureByID(ctx context.Context, lectureID string) (*Lecture, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectLectureSQL+` WHERE lecture_id = ?`, lectureID)
	lecture, err := scanLecture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lecture %s: %w", lectureID, ErrNotFound)
	}
	return lecture, err
}

// LectureBySourceUID fetches one lecture by its stable source identifier.
func (s *Store) LectureBySourceUID(ctx context.Context, sourceUID string) (*Lecture, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, selectLectureSQL+` WHERE source_uid = ?`, sourceUID)
	lecture, err := scanLecture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", sourceUID, ErrNotFound)
	}
	return lecture, err
}

// Courses lists distinct course codes with stored lectures.
func (s *Store) Courses(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT course_code FROM lectures ORDER BY course_code`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []string
	for rows.Next() {
		var course string
		if err := rows.Scan(&course); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// DatesForCourse lists distinct lecture dates recorded for a course.
func (s *Store) DatesForCourse(ctx context.Context, courseCode string) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT lecture_date FROM lectures WHERE course_code = ? ORDER BY lecture_date`, courseCode)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, date)
	}
	return dates, rows.Err()
}

// LecturesForCourseDate lists lectures recorded for a course on a date.
func (s *Store) LecturesForCourseDate(ctx context.Context, courseCode, lectureDate string) ([]*Lecture, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		selectLectureSQL+` WHERE course_code = ? AND lecture_date = ? ORDER BY created_at`, courseCode, lectureDate)
	if err != nil {
		return nil, fmt.Errorf("list lectures: %w", err)
	}
	defer rows.Close()

	var lectures []*Lecture
	for rows.Next() {
		lecture, err := scanLecture(rows)
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, lecture)
	}
	return lectures, rows.Err()
}

const selectLectureSQL = `SELECT lecture_id, course_code, lecture_date, title, source_url, source_uid, uid_short, language, created_at FROM lectures`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLecture(row rowScanner) (*Lecture, error) {
	var (
		lecture   Lecture
		createdAt sql.NullString
	)
	if err := row.Scan(
		&lecture.LectureID,
		&lecture.CourseCode,
		&lecture.LectureDate,
		&lecture.Title,
		&lecture.SourceURL,
		&lecture.SourceUID,
		&lecture.UIDShort,
		&lecture.Language,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan lecture: %w", err)
	}
	lecture.CreatedAt = parseTime(createdAt)
	return &lecture, nil
}
