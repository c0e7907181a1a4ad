package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SessionDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 1, cfg.Session.SnapshotIntervalSeconds)
	assert.Equal(t, 60, cfg.Session.DefaultQuestionSeconds)
	assert.Equal(t, "low", cfg.Session.AutoTerminateMinSeverity)
	assert.Equal(t, 2*time.Second, cfg.Session.AutoSubmitRetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.Session.ProgressTTL)
}

func TestLoad_SessionFromEnv(t *testing.T) {
	t.Setenv("SESSION_DEFAULT_QUESTION_SECONDS", "45")
	t.Setenv("SESSION_AUTO_TERMINATE_MIN_SEVERITY", "high")
	t.Setenv("SESSION_AUTO_SUBMIT_RETRY_DELAY_MS", "250")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()
	s, err := cfg.SessionSettings()
	require.NoError(t, err)

	assert.Equal(t, 45, s.DefaultQuestionSeconds)
	assert.Equal(t, model.SeverityHigh, s.AutoTerminateMinSeverity)
	assert.Equal(t, 250*time.Millisecond, s.AutoSubmitRetryDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestSessionSettings_PolicyFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
session:
  default_question_seconds: 90
  auto_terminate_min_severity: medium
  auto_submit_retries: 0
thresholds:
  mouse_moves_per_second: 80
  dev_tools_delta: 200
alert_delays:
  high: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg := Load()
	cfg.Session.PolicyFile = path
	s, err := cfg.SessionSettings()
	require.NoError(t, err)

	assert.Equal(t, 90, s.DefaultQuestionSeconds)
	assert.Equal(t, model.SeverityMedium, s.AutoTerminateMinSeverity)
	assert.Equal(t, 0, s.AutoSubmitRetries)
	assert.Equal(t, 80, s.Thresholds.MouseMovesPerSecond)
	assert.Equal(t, 100, s.Thresholds.KeyPressesPerSecond, "untouched thresholds keep their defaults")
	assert.Equal(t, 200, s.Thresholds.DevToolsDelta)
	assert.Equal(t, 15*time.Second, s.AlertDelays.High)
	assert.Equal(t, 8*time.Second, s.AlertDelays.Medium)
}

func TestSessionSettings_MissingPolicyFile(t *testing.T) {
	cfg := Load()
	cfg.Session.PolicyFile = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := cfg.SessionSettings()
	assert.Error(t, err)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "student:7:exam:abc:progress", CacheKey.StudentProgressKey("abc", 7))
	assert.Equal(t, "student:7:exam:abc:submitted", CacheKey.StudentSubmittedKey("abc", 7))
	assert.Equal(t, "exam:abc:monitor", CacheKey.ExamMonitorChannel("abc"))
}

func TestLoadPolicyFile_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	doc := `
thresholds:
  mouse_moves_per_secnd: 80
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := LoadPolicyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid policy file")
}

func TestLoadPolicyFile_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"severity":     "session:\n  auto_terminate_min_severity: critical\n",
		"duration":     "alert_delays:\n  low: five seconds\n",
		"non-positive": "session:\n  default_question_seconds: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "policy.yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

			_, err := LoadPolicyFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicyFile_EmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# nothing overridden\n"), 0o600))

	pf, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Zero(t, pf.Thresholds.MouseMovesPerSecond)
}
