package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zaldivarmena/mindy/internal/util"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
}

// StudyContentDBStorage implements store.StudyContentStorage on PostgreSQL.
type StudyContentDBStorage struct {
	conn pgxIConn
}

// NewStudyContentDBStorage wraps an existing pool, connection or transaction.
func NewStudyContentDBStorage(conn pgxIConn) *StudyContentDBStorage {
	return &StudyContentDBStorage{conn: conn}
}

const createStudyContentSQL = `
INSERT INTO study_type_content (course_id, type, status)
VALUES ($1, $2, 'Generating')
ON CONFLICT (course_id, type) DO UPDATE
SET status = 'Generating',
    updated_at = now()
RETURNING id;
`

func (s *StudyContentDBStorage) CreateStudyContent(ctx context.Context, courseID, studyType string) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, createStudyContentSQL,
		util.SanitizePostgresText(courseID),
		util.SanitizePostgresText(studyType),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create study content: %w", err)
	}
	return id, nil
}

const getStudyContentSQL = `
SELECT id, course_id, type, content, status, created_at, updated_at
FROM study_type_content
WHERE course_id = $1 AND type = $2;
`

func (s *StudyContentDBStorage) GetStudyContent(ctx context.Context, courseID, studyType string) (store.StudyContent, error) {
	var (
		c       store.StudyContent
		content []byte
		status  string
	)
	err := s.conn.QueryRow(ctx, getStudyContentSQL, courseID, studyType).Scan(
		&c.ID, &c.CourseID, &c.Type, &content, &status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return store.StudyContent{}, store.ErrNotFound
		}
		return store.StudyContent{}, fmt.Errorf("get study content: %w", err)
	}
	if len(content) > 0 {
		c.Content = json.RawMessage(content)
	}
	c.Status = store.Status(status)
	return c, nil
}

const updateStudyContentSQL = `
UPDATE study_type_content
SET content = $3::jsonb,
    updated_at = now()
WHERE course_id = $1 AND type = $2
RETURNING id;
`

func (s *StudyContentDBStorage) UpdateStudyContent(ctx context.Context, courseID, studyType string, content []byte) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, updateStudyContentSQL, courseID, studyType, string(util.SanitizeJSONB(content))).Scan(&id)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("update study content: %w", err)
	}
	logger.Debug("[Store] Study content updated", "course", courseID, "type", studyType, "bytes", len(content))
	return id, nil
}

const completeStudyContentSQL = `
UPDATE study_type_content
SET content = $2::jsonb,
    status = 'Ready',
    updated_at = now()
WHERE id = $1;
`

func (s *StudyContentDBStorage) CompleteStudyContent(ctx context.Context, id int64, content []byte) error {
	tag, err := s.conn.Exec(ctx, completeStudyContentSQL, id, string(util.SanitizeJSONB(content)))
	if err != nil {
		return fmt.Errorf("complete study content %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const failStudyContentSQL = `
UPDATE study_type_content
SET content = jsonb_build_object('error', $2::text),
    status = 'Failed',
    updated_at = now()
WHERE id = $1;
`

func (s *StudyContentDBStorage) FailStudyContent(ctx context.Context, id int64, reason string) error {
	tag, err := s.conn.Exec(ctx, failStudyContentSQL, id, util.SanitizePostgresText(reason))
	if err != nil {
		return fmt.Errorf("fail study content %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.StudyContentStorage = (*StudyContentDBStorage)(nil)
