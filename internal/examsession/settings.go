package examsession

import (
	"time"

	"github.com/stemsi/exstem-session/internal/model"
)

// Thresholds tunes the rate windows and heuristics of the integrity monitor.
type Thresholds struct {
	MouseMovesPerSecond int `yaml:"mouse_moves_per_second"`
	KeyPressesPerSecond int `yaml:"key_presses_per_second"`
	ScrollsPerSecond    int `yaml:"scrolls_per_second"`
	DevToolsDelta       int `yaml:"dev_tools_delta"`
}

// AlertDelays is how long a transient alert stays on screen, per severity.
type AlertDelays struct {
	Low    time.Duration `yaml:"low"`
	Medium time.Duration `yaml:"medium"`
	High   time.Duration `yaml:"high"`
}

// For returns the dismiss delay of an alert of the given severity.
func (d AlertDelays) For(s model.Severity) time.Duration {
	switch s {
	case model.SeverityHigh:
		return d.High
	case model.SeverityMedium:
		return d.Medium
	}
	return d.Low
}

// Settings configures a Controller. The zero value is not usable; start from DefaultSettings.
type Settings struct {
	// SnapshotEvery is the number of ticks between progress snapshots.
	SnapshotEvery int
	// DefaultQuestionSeconds seeds question countdowns of questions without their own limit.
	DefaultQuestionSeconds int
	// AutoTerminateMinSeverity is the lowest severity that ends the attempt when
	// the exam policy sets autoTerminateOnSuspicious.
	AutoTerminateMinSeverity model.Severity
	// AutoSubmitRetries is how many extra attempts an automatic submission gets.
	AutoSubmitRetries    int
	AutoSubmitRetryDelay time.Duration
	// IOTimeout bounds every backend call.
	IOTimeout   time.Duration
	Thresholds  Thresholds
	AlertDelays AlertDelays
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		SnapshotEvery:            1,
		DefaultQuestionSeconds:   60,
		AutoTerminateMinSeverity: model.SeverityLow,
		AutoSubmitRetries:        3,
		AutoSubmitRetryDelay:     2 * time.Second,
		IOTimeout:                10 * time.Second,
		Thresholds: Thresholds{
			MouseMovesPerSecond: 50,
			KeyPressesPerSecond: 100,
			ScrollsPerSecond:    20,
			DevToolsDelta:       160,
		},
		AlertDelays: AlertDelays{
			Low:    5 * time.Second,
			Medium: 8 * time.Second,
			High:   10 * time.Second,
		},
	}
}
