package websocket

import (
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer        Action = "answer"
	ActionClear         Action = "clear"
	ActionNavigate      Action = "navigate"
	ActionToggleReview  Action = "toggle_review"
	ActionRequestSubmit Action = "request_submit"
	ActionConfirmSubmit Action = "confirm_submit"
	ActionCancelSubmit  Action = "cancel_submit"
	ActionSignal        Action = "signal"
	ActionPermission    Action = "permission"
	ActionPing          Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records an answer for the current question.
// Answer is a string, or an array of strings for multiple-correct questions.
type AnswerRequest struct {
	Action     Action            `json:"action"`
	QuestionID string            `json:"question_id" binding:"required,uuid"`
	Answer     model.AnswerValue `json:"answer"`
}

// QuestionRequest targets one question (clear, toggle_review).
type QuestionRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id" binding:"required,uuid"`
}

// NavigateRequest moves to an absolute index, or by Delta when Index is nil.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  *int   `json:"index" binding:"omitempty,min=0"`
	Delta  int    `json:"delta" binding:"omitempty,oneof=-1 1"`
}

// SignalRequest reports one environment event observed by the exam page.
type SignalRequest struct {
	Action      Action                 `json:"action"`
	Kind        examsession.SignalKind `json:"kind" binding:"required"`
	Fullscreen  bool                   `json:"fullscreen"`
	OuterWidth  int                    `json:"outer_width" binding:"min=0"`
	InnerWidth  int                    `json:"inner_width" binding:"min=0"`
	OuterHeight int                    `json:"outer_height" binding:"min=0"`
	InnerHeight int                    `json:"inner_height" binding:"min=0"`
	Faces       int                    `json:"faces" binding:"min=0"`
}

// PermissionRequest reports the outcome of a camera or fullscreen request.
type PermissionRequest struct {
	Action  Action                     `json:"action"`
	Kind    examsession.PermissionKind `json:"kind" binding:"required,oneof=camera fullscreen"`
	Granted bool                       `json:"granted"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventAlert        Event = "alert"
	EventOverlay      Event = "overlay"
	EventCommand      Event = "command"
	EventConfirm      Event = "confirm"
	EventVerdict      Event = "verdict"
	EventSubmitted    Event = "submitted"
	EventNavigateAway Event = "navigate_away"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// Command names a platform instruction.
type Command string

const (
	CommandRequestFullscreen Command = "request_fullscreen"
	CommandExitFullscreen    Command = "exit_fullscreen"
	CommandRequestCamera     Command = "request_camera"
	CommandReleaseCamera     Command = "release_camera"
)

type StateEvent struct {
	Event Event            `json:"event"`
	View  examsession.View `json:"view"`
}

type AlertEvent struct {
	Event Event             `json:"event"`
	Alert examsession.Alert `json:"alert"`
}

type OverlayEvent struct {
	Event   Event               `json:"event"`
	Overlay examsession.Overlay `json:"overlay"`
}

type CommandEvent struct {
	Event   Event   `json:"event"`
	Command Command `json:"command"`
}

type ConfirmEvent struct {
	Event   Event               `json:"event"`
	Summary examsession.Summary `json:"summary"`
}

// VerdictEvent answers a signal. Prevent asks the page to cancel the event's default action.
type VerdictEvent struct {
	Event    Event                     `json:"event"`
	Flagged  bool                      `json:"flagged"`
	Prevent  bool                      `json:"prevent"`
	Activity *model.SuspiciousActivity `json:"activity,omitempty"`
}

type SubmittedEvent struct {
	Event  Event                  `json:"event"`
	Result model.SubmissionResult `json:"result"`
}

type NavigateAwayEvent struct {
	Event Event            `json:"event"`
	Exit  examsession.Exit `json:"exit"`
}

// ErrorEvent carries either a user-visible Notice or a rejected request.
type ErrorEvent struct {
	Event  Event                      `json:"event"`
	Error  string                     `json:"error"`
	Code   string                     `json:"code,omitempty"`
	Action examsession.RecoveryAction `json:"recovery_action,omitempty"`
	Fields map[string]string          `json:"fields,omitempty"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
