package examsession

import "errors"

// Operation errors returned by the Controller.
var (
	ErrNotInProgress        = errors.New("exam session is not in progress")
	ErrSessionClosed        = errors.New("exam session is closed")
	ErrBlocked              = errors.New("exam is blocked until fullscreen is restored")
	ErrInvalidTransition    = errors.New("invalid session phase transition")
	ErrInvalidQuestion      = errors.New("question does not belong to this exam")
	ErrInvalidIndex         = errors.New("question index out of range")
	ErrQuestionLocked       = errors.New("question is locked")
	ErrNotCurrentQuestion   = errors.New("only the current question can be changed")
	ErrNavigationNotAllowed = errors.New("navigation is restricted to the next question")
	ErrInvalidAnswer        = errors.New("answer does not match the question type")
	ErrNoPendingSubmit      = errors.New("no submission awaiting confirmation")
	ErrSubmissionInFlight   = errors.New("submission already in progress")
	ErrUnexpectedPermission = errors.New("permission was not requested")
)

// Collaborator errors.
var (
	// ErrNoSnapshot is returned by Backend.LoadProgress when the attempt has no saved progress.
	ErrNoSnapshot = errors.New("no progress snapshot")
	// ErrInvalidExam is returned when a loaded exam cannot be administered.
	ErrInvalidExam = errors.New("exam definition is not administrable")
	// ErrSubmissionRejected wraps an unsuccessful submission response.
	ErrSubmissionRejected = errors.New("submission rejected")
)
