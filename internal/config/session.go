package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed policy.schema.json
var policySchemaJSON []byte

const policySchemaURL = "policy.schema.json"

var policySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(policySchemaURL, bytes.NewReader(policySchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(policySchemaURL)
})

// PolicyFile is the optional YAML document named by SESSION_POLICY_FILE.
// Zero values leave the corresponding setting untouched.
//
//	session:
//	  default_question_seconds: 90
//	  auto_terminate_min_severity: medium
//	thresholds:
//	  mouse_moves_per_second: 80
//	alert_delays:
//	  high: 15s
type PolicyFile struct {
	Session struct {
		SnapshotEvery            int           `yaml:"snapshot_every"`
		DefaultQuestionSeconds   int           `yaml:"default_question_seconds"`
		AutoTerminateMinSeverity string        `yaml:"auto_terminate_min_severity"`
		AutoSubmitRetries        *int          `yaml:"auto_submit_retries"`
		AutoSubmitRetryDelay     time.Duration `yaml:"auto_submit_retry_delay"`
	} `yaml:"session"`
	Thresholds  examsession.Thresholds  `yaml:"thresholds"`
	AlertDelays examsession.AlertDelays `yaml:"alert_delays"`
}

// LoadPolicyFile parses the YAML policy file at path and checks it against the
// embedded JSON schema, so a misspelled key fails startup instead of being ignored.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if err := validatePolicy(raw); err != nil {
		return nil, fmt.Errorf("invalid policy file %s: %w", path, err)
	}

	var pf PolicyFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return &pf, nil
}

// validatePolicy converts the YAML document to its JSON data model and validates it.
func validatePolicy(raw []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	js, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var instance interface{}
	if err := dec.Decode(&instance); err != nil {
		return err
	}

	schema, err := policySchema()
	if err != nil {
		return fmt.Errorf("compile policy schema: %w", err)
	}
	return schema.Validate(instance)
}

// Apply overlays the non-zero values of the file onto s.
func (pf *PolicyFile) Apply(s *examsession.Settings) {
	if pf.Session.SnapshotEvery > 0 {
		s.SnapshotEvery = pf.Session.SnapshotEvery
	}
	if pf.Session.DefaultQuestionSeconds > 0 {
		s.DefaultQuestionSeconds = pf.Session.DefaultQuestionSeconds
	}
	if pf.Session.AutoTerminateMinSeverity != "" {
		s.AutoTerminateMinSeverity = model.ParseSeverity(pf.Session.AutoTerminateMinSeverity)
	}
	if pf.Session.AutoSubmitRetries != nil && *pf.Session.AutoSubmitRetries >= 0 {
		s.AutoSubmitRetries = *pf.Session.AutoSubmitRetries
	}
	if pf.Session.AutoSubmitRetryDelay > 0 {
		s.AutoSubmitRetryDelay = pf.Session.AutoSubmitRetryDelay
	}

	t := pf.Thresholds
	if t.MouseMovesPerSecond > 0 {
		s.Thresholds.MouseMovesPerSecond = t.MouseMovesPerSecond
	}
	if t.KeyPressesPerSecond > 0 {
		s.Thresholds.KeyPressesPerSecond = t.KeyPressesPerSecond
	}
	if t.ScrollsPerSecond > 0 {
		s.Thresholds.ScrollsPerSecond = t.ScrollsPerSecond
	}
	if t.DevToolsDelta > 0 {
		s.Thresholds.DevToolsDelta = t.DevToolsDelta
	}

	d := pf.AlertDelays
	if d.Low > 0 {
		s.AlertDelays.Low = d.Low
	}
	if d.Medium > 0 {
		s.AlertDelays.Medium = d.Medium
	}
	if d.High > 0 {
		s.AlertDelays.High = d.High
	}
}

// SessionSettings builds the controller settings from the environment and, when
// configured, the YAML policy file. The file wins over the environment.
func (c *Config) SessionSettings() (examsession.Settings, error) {
	s := examsession.DefaultSettings()

	if c.Session.SnapshotIntervalSeconds > 0 {
		s.SnapshotEvery = c.Session.SnapshotIntervalSeconds
	}
	if c.Session.DefaultQuestionSeconds > 0 {
		s.DefaultQuestionSeconds = c.Session.DefaultQuestionSeconds
	}
	s.AutoTerminateMinSeverity = model.ParseSeverity(c.Session.AutoTerminateMinSeverity)
	if c.Session.AutoSubmitRetries >= 0 {
		s.AutoSubmitRetries = c.Session.AutoSubmitRetries
	}
	if c.Session.AutoSubmitRetryDelay >= 0 {
		s.AutoSubmitRetryDelay = c.Session.AutoSubmitRetryDelay
	}

	if c.Session.PolicyFile == "" {
		return s, nil
	}
	pf, err := LoadPolicyFile(c.Session.PolicyFile)
	if err != nil {
		return s, err
	}
	pf.Apply(&s)
	return s, nil
}
