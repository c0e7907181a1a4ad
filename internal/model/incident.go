package model

import (
	"time"

	"github.com/google/uuid"
)

// Severity grades a suspicious activity.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities: low < medium < high. Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// ParseSeverity maps a config string to a Severity, falling back to low.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	}
	return SeverityLow
}

// ActivityType names a classified integrity signal.
type ActivityType string

const (
	ActivityTabSwitch          ActivityType = "tab-switch"
	ActivityWindowBlur         ActivityType = "window-blur"
	ActivityCopyPaste          ActivityType = "copy-paste"
	ActivityContextMenu        ActivityType = "context-menu"
	ActivityMouseOutside       ActivityType = "mouse-outside"
	ActivityWindowResize       ActivityType = "window-resize"
	ActivityRapidMouseMovement ActivityType = "rapid-mouse-movement"
	ActivityRapidKeyPress      ActivityType = "rapid-key-press"
	ActivityExcessiveScrolling ActivityType = "excessive-scrolling"
	ActivityFullscreenExit     ActivityType = "fullscreen-exit"
	ActivityDevToolsOpen       ActivityType = "dev-tools-open"
	ActivityPrintAttempt       ActivityType = "print-attempt"
	ActivityFaceNotDetected    ActivityType = "face-not-detected"
	ActivityMultipleFaces      ActivityType = "multiple-faces"
)

// SuspiciousActivity is one entry of the append-only incident log.
type SuspiciousActivity struct {
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ProctorEvent is the real-time incident forwarded to proctor observers.
type ProctorEvent struct {
	ExamID      uuid.UUID    `json:"examId"`
	StudentID   int          `json:"studentId"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Timestamp   time.Time    `json:"timestamp"`
}

// MonitorEventType names a message on the exam monitor channel.
type MonitorEventType string

const (
	MonitorIncident         MonitorEventType = "incident"
	MonitorStudentJoined    MonitorEventType = "student_joined"
	MonitorStudentSubmitted MonitorEventType = "student_submitted"
)

// MonitorMessage is the envelope published on the exam monitor channel and
// relayed verbatim to proctors.
type MonitorMessage struct {
	Type      MonitorEventType `json:"type"`
	StudentID int              `json:"student_id"`
	Data      any              `json:"data,omitempty"`
}
