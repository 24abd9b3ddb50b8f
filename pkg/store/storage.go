package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no study content row matches.
var ErrNotFound = errors.New("study content not found")

// Status is the generation state of a study content row.
type Status string

const (
	StatusGenerating Status = "Generating"
	StatusReady      Status = "Ready"
	StatusFailed     Status = "Failed"
)

// StudyContent is one generated artifact (flashcards, quiz or mind map) of a
// course. Content is the raw JSON as produced by the model or the last edit.
type StudyContent struct {
	ID        int64           `json:"id"`
	CourseID  string          `json:"courseId"`
	Type      string          `json:"type"`
	Content   json.RawMessage `json:"content"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// StudyContentStorage persists study content keyed by (course, type).
type StudyContentStorage interface {
	// CreateStudyContent inserts or resets the row for courseID/studyType to
	// Generating and returns its id.
	CreateStudyContent(ctx context.Context, courseID, studyType string) (int64, error)
	GetStudyContent(ctx context.Context, courseID, studyType string) (StudyContent, error)
	// UpdateStudyContent stores content verbatim. Returns ErrNotFound when no
	// row exists.
	UpdateStudyContent(ctx context.Context, courseID, studyType string, content []byte) (int64, error)
	CompleteStudyContent(ctx context.Context, id int64, content []byte) error
	FailStudyContent(ctx context.Context, id int64, reason string) error
}
