package examsession

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// SignalKind names a raw environment event reported by the exam surface.
type SignalKind string

const (
	SignalVisibilityHidden SignalKind = "visibility-hidden"
	SignalWindowBlur       SignalKind = "window-blur"
	SignalCopy             SignalKind = "copy"
	SignalCut              SignalKind = "cut"
	SignalPaste            SignalKind = "paste"
	SignalContextMenu      SignalKind = "context-menu"
	SignalMouseLeave       SignalKind = "mouse-leave"
	SignalResize           SignalKind = "resize"
	SignalMouseMove        SignalKind = "mouse-move"
	SignalKeyDown          SignalKind = "key-down"
	SignalScroll           SignalKind = "scroll"
	SignalFullscreenChange SignalKind = "fullscreen-change"
	SignalViewportSample   SignalKind = "viewport-sample"
	SignalPrint            SignalKind = "print"
	SignalFaceCount        SignalKind = "face-count"
)

// Signal is one observed environment event.
type Signal struct {
	Kind SignalKind
	At   time.Time

	// Fullscreen is the new state carried by fullscreen-change.
	Fullscreen bool

	// Viewport dimensions carried by viewport-sample.
	OuterWidth  int
	InnerWidth  int
	OuterHeight int
	InnerHeight int

	// Faces is the face count carried by face-count.
	Faces int
}

// Verdict is the monitor's answer to one signal.
type Verdict struct {
	// Flagged is true when Activity was appended to the log.
	Flagged  bool
	Activity model.SuspiciousActivity
	// Prevent asks the surface to cancel the event's default action.
	Prevent bool
}

// Monitor classifies signals into suspicious activities using a fixed table
// and keeps the append-only incident log.
//
// Rate-based signals count into fixed one-second windows that Tick resets;
// a window emits once, when its count first exceeds the limit.
type Monitor struct {
	policy model.Policy
	limits Thresholds
	active bool

	mouseMoves int
	keyPresses int
	scrolls    int

	devToolsOpen bool

	log []model.SuspiciousActivity
}

// NewMonitor creates an inactive monitor for the given exam policy.
func NewMonitor(policy model.Policy, limits Thresholds) *Monitor {
	return &Monitor{
		policy: policy,
		limits: limits,
		log:    make([]model.SuspiciousActivity, 0, 16),
	}
}

// Activate starts classifying signals.
func (m *Monitor) Activate() {
	m.active = true
}

// Deactivate stops classifying; the log is kept.
func (m *Monitor) Deactivate() {
	m.active = false
	m.resetWindows()
}

// Active reports whether signals are currently classified.
func (m *Monitor) Active() bool {
	return m.active
}

// Tick closes the current rate window.
func (m *Monitor) Tick() {
	m.resetWindows()
}

func (m *Monitor) resetWindows() {
	m.mouseMoves = 0
	m.keyPresses = 0
	m.scrolls = 0
}

// Len returns the number of recorded activities.
func (m *Monitor) Len() int {
	return len(m.log)
}

// Log returns a copy of the incident log.
func (m *Monitor) Log() []model.SuspiciousActivity {
	out := make([]model.SuspiciousActivity, len(m.log))
	copy(out, m.log)
	return out
}

// Observe classifies sig and records the resulting activity, if any.
// Copy/paste and context-menu defaults are prevented by policy even when the
// monitor is inactive.
func (m *Monitor) Observe(sig Signal) Verdict {
	v := Verdict{Prevent: m.prevents(sig.Kind)}
	if !m.active {
		return v
	}

	typ, desc, sev, ok := m.classify(sig)
	if !ok {
		return v
	}

	v.Flagged = true
	v.Activity = model.SuspiciousActivity{
		Type:        typ,
		Description: desc,
		Severity:    sev,
		Timestamp:   sig.At,
	}
	m.log = append(m.log, v.Activity)
	return v
}

func (m *Monitor) prevents(kind SignalKind) bool {
	switch kind {
	case SignalCopy, SignalCut, SignalPaste:
		return m.policy.PreventCopyPaste
	case SignalContextMenu:
		return true
	}
	return false
}

func (m *Monitor) classify(sig Signal) (model.ActivityType, string, model.Severity, bool) {
	switch sig.Kind {
	case SignalVisibilityHidden:
		if m.policy.PreventTabSwitch {
			return model.ActivityTabSwitch, "Switched away from the exam tab", model.SeverityMedium, true
		}
	case SignalWindowBlur:
		return model.ActivityWindowBlur, "Exam window lost focus", model.SeverityMedium, true
	case SignalCopy, SignalCut, SignalPaste:
		if m.policy.PreventCopyPaste {
			return model.ActivityCopyPaste, "Clipboard " + string(sig.Kind) + " attempted", model.SeverityMedium, true
		}
	case SignalContextMenu:
		return model.ActivityContextMenu, "Context menu opened", model.SeverityLow, true
	case SignalMouseLeave:
		return model.ActivityMouseOutside, "Pointer left the exam window", model.SeverityLow, true
	case SignalResize:
		return model.ActivityWindowResize, "Exam window resized", model.SeverityLow, true
	case SignalMouseMove:
		m.mouseMoves++
		if m.mouseMoves == m.limits.MouseMovesPerSecond+1 {
			return model.ActivityRapidMouseMovement, "Unusually rapid mouse movement", model.SeverityLow, true
		}
	case SignalKeyDown:
		m.keyPresses++
		if m.keyPresses == m.limits.KeyPressesPerSecond+1 {
			return model.ActivityRapidKeyPress, "Unusually rapid key presses", model.SeverityLow, true
		}
	case SignalScroll:
		m.scrolls++
		if m.scrolls == m.limits.ScrollsPerSecond+1 {
			return model.ActivityExcessiveScrolling, "Excessive scrolling", model.SeverityLow, true
		}
	case SignalFullscreenChange:
		if !sig.Fullscreen && m.policy.RequireFullscreen {
			return model.ActivityFullscreenExit, "Exited fullscreen mode", model.SeverityHigh, true
		}
	case SignalViewportSample:
		open := sig.OuterWidth-sig.InnerWidth > m.limits.DevToolsDelta ||
			sig.OuterHeight-sig.InnerHeight > m.limits.DevToolsDelta
		wasOpen := m.devToolsOpen
		m.devToolsOpen = open
		if open && !wasOpen {
			return model.ActivityDevToolsOpen, "Developer tools appear to be open", model.SeverityHigh, true
		}
	case SignalPrint:
		return model.ActivityPrintAttempt, "Print attempted", model.SeverityMedium, true
	case SignalFaceCount:
		if !m.policy.DetectHeadMovement {
			break
		}
		switch {
		case sig.Faces == 0:
			return model.ActivityFaceNotDetected, "No face detected on camera", model.SeverityHigh, true
		case sig.Faces > 1:
			return model.ActivityMultipleFaces, "Multiple faces detected on camera", model.SeverityHigh, true
		}
	}
	return "", "", "", false
}
