package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
)

// StudentBackend is the exam backend as seen by one student's session controller.
type StudentBackend struct {
	sessions  *ExamSessionService
	studentID int
}

var _ examsession.Backend = (*StudentBackend)(nil)

// BackendFor scopes the service to a single student.
func (s *ExamSessionService) BackendFor(studentID int) *StudentBackend {
	return &StudentBackend{sessions: s, studentID: studentID}
}

func (b *StudentBackend) LoadExamSession(ctx context.Context, examID uuid.UUID) (*model.ExamSessionPayload, error) {
	return b.sessions.LoadExamSession(ctx, examID, b.studentID)
}

func (b *StudentBackend) LoadProgress(ctx context.Context, examID uuid.UUID) (*model.SessionSnapshot, error) {
	snap, err := b.sessions.GetProgress(ctx, examID, b.studentID)
	if errors.Is(err, ErrNoProgress) {
		return nil, examsession.ErrNoSnapshot
	}
	return snap, err
}

func (b *StudentBackend) SaveProgress(ctx context.Context, examID uuid.UUID, snap model.SessionSnapshot) error {
	return b.sessions.SaveProgress(ctx, examID, b.studentID, snap)
}

func (b *StudentBackend) ClearProgress(ctx context.Context, examID uuid.UUID) error {
	return b.sessions.ClearProgress(ctx, examID, b.studentID)
}

func (b *StudentBackend) Submit(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionResult, error) {
	return b.sessions.Submit(ctx, b.studentID, payload)
}
