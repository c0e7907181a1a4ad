package examsession

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Backend is the exam backend collaborator, scoped to one student.
type Backend interface {
	LoadExamSession(ctx context.Context, examID uuid.UUID) (*model.ExamSessionPayload, error)
	// LoadProgress returns ErrNoSnapshot when nothing was saved.
	LoadProgress(ctx context.Context, examID uuid.UUID) (*model.SessionSnapshot, error)
	SaveProgress(ctx context.Context, examID uuid.UUID, snap model.SessionSnapshot) error
	ClearProgress(ctx context.Context, examID uuid.UUID) error
	Submit(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionResult, error)
}

// ProctorChannel is the best-effort real-time channel to proctor observers.
// It is connected when the attempt starts and closed when it ends.
type ProctorChannel interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, event model.ProctorEvent) error
	Close() error
}

// Fullscreen controls the exam window's fullscreen state. Changes made by the
// student arrive as fullscreen-change signals.
type Fullscreen interface {
	RequestFullscreen()
	ExitFullscreen()
}

// Camera controls the webcam. The outcome of RequestCamera arrives through
// Controller.GrantPermission.
type Camera interface {
	RequestCamera()
	ReleaseCamera()
}

// UI is what the controller shows the student.
type UI interface {
	Render(View)
	ShowAlert(Alert)
	SetOverlay(Overlay)
	ConfirmSubmit(Summary)
	ShowError(Notice)
	Submitted(model.SubmissionResult)
	NavigateAway(Exit)
}

// Surface is the platform the attempt is rendered on.
type Surface interface {
	Fullscreen
	Camera
	UI
}

// PermissionKind names a permission the exam policy can require.
type PermissionKind string

const (
	PermissionCamera     PermissionKind = "camera"
	PermissionFullscreen PermissionKind = "fullscreen"
)

// Alert is a transient incident notice.
type Alert struct {
	Activity     model.SuspiciousActivity `json:"activity"`
	DismissAfter time.Duration            `json:"dismissAfter"`
}

// Overlay toggles the blocking overlay.
type Overlay struct {
	Blocking bool   `json:"blocking"`
	Reason   string `json:"reason,omitempty"`
}

// OverlayFullscreenRequired is the overlay reason used while fullscreen is lost.
const OverlayFullscreenRequired = "fullscreen-required"

// RecoveryAction is the single action offered with a user-visible failure.
type RecoveryAction string

const (
	ActionRetry     RecoveryAction = "retry"
	ActionDashboard RecoveryAction = "dashboard"
)

// Notice is a user-visible failure.
type Notice struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Action  RecoveryAction `json:"action"`
}

// ExitReason explains why the student leaves the exam view.
type ExitReason string

const (
	ExitLoadFailed       ExitReason = "load-failed"
	ExitCameraDenied     ExitReason = "camera-denied"
	ExitSubmitted        ExitReason = "submitted"
	ExitSubmissionFailed ExitReason = "submission-failed"
)

// Exit tells the surface to leave the exam view.
type Exit struct {
	Reason  ExitReason `json:"reason"`
	Message string     `json:"message,omitempty"`
}

// QuestionView is the per-question state shown in the navigator.
type QuestionView struct {
	ID              uuid.UUID `json:"id"`
	Answered        bool      `json:"answered"`
	Locked          bool      `json:"locked"`
	MarkedForReview bool      `json:"markedForReview"`
}

// View is the full render state of an attempt.
type View struct {
	Phase                Phase          `json:"phase"`
	ExamID               uuid.UUID      `json:"examId"`
	Title                string         `json:"title,omitempty"`
	CurrentQuestionIndex int            `json:"currentQuestionIndex"`
	CurrentQuestionID    uuid.UUID      `json:"currentQuestionId"`
	ReadOnly             bool           `json:"readOnly"`
	TimeLeft             int            `json:"timeLeft"`
	QuestionTimeLeft     *int           `json:"questionTimeLeft,omitempty"`
	Blocked              bool           `json:"blocked"`
	Questions            []QuestionView `json:"questions,omitempty"`
}
