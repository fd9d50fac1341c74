package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the site-wide FolderShare configuration, the runtime
// counterpart of the on-disk YAML settings file. Unlike Config (process
// environment, fixed at startup) these values are editable by an
// administrator through the settings endpoint.
type Settings struct {
	// FileScheme selects where stored-file bytes live: "filesystem" or "s3".
	FileScheme string `yaml:"file_scheme" json:"file_scheme"`

	// FileDirectory is the blob root for the filesystem scheme.
	FileDirectory string `yaml:"file_directory" json:"file_directory"`

	// S3 configures the s3 scheme.
	S3 S3Settings `yaml:"s3" json:"s3"`

	// AllowedExtensions restricts uploads and unarchiving to the listed
	// filename extensions (lowercase, no dot). Empty allows everything.
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`

	// MaxUploadSize is the per-file upload limit in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size" json:"max_upload_size"`

	// MaxUploadCount is the per-request upload file count limit.
	MaxUploadCount int `yaml:"max_upload_count" json:"max_upload_count"`

	// AllowedCommands restricts the command menu to the listed command
	// names. Empty allows every registered command.
	AllowedCommands []string `yaml:"allowed_commands" json:"allowed_commands"`

	// ActivityLogging logs every executed command at info level.
	ActivityLogging bool `yaml:"activity_logging" json:"activity_logging"`

	// ProcessLocks toggles the advisory per-item locks guarding
	// mutating tree operations.
	ProcessLocks bool `yaml:"process_locks" json:"process_locks"`

	// QueuePollInterval is how often the worker polls for deferred tasks.
	QueuePollInterval Duration `yaml:"queue_poll_interval" json:"queue_poll_interval"`
}

// Duration is a time.Duration that encodes as a human-readable string
// ("30s", "5m") in both YAML and JSON, so the settings file and the
// settings endpoint stay editable by hand.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// S3Settings configures the s3 file scheme.
type S3Settings struct {
	Region    string `yaml:"region" json:"region"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Endpoint  string `yaml:"endpoint" json:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
}

// DefaultSettings returns the settings used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		FileScheme:        "filesystem",
		FileDirectory:     "data/files",
		MaxUploadSize:     256 << 20, // 256 MiB
		MaxUploadCount:    100,
		ActivityLogging:   true,
		ProcessLocks:      true,
		QueuePollInterval: Duration(30 * time.Second),
	}
}

// ExtensionAllowed reports whether a filename's extension passes the
// allow-list. An empty list allows everything.
func (s *Settings) ExtensionAllowed(filename string) bool {
	if len(s.AllowedExtensions) == 0 {
		return true
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, allowed := range s.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// CommandAllowed reports whether a command passes the restriction list.
// An empty list allows every command.
func (s *Settings) CommandAllowed(name string) bool {
	if len(s.AllowedCommands) == 0 {
		return true
	}
	for _, allowed := range s.AllowedCommands {
		if name == allowed {
			return true
		}
	}
	return false
}

// SettingsStore holds the live settings and persists edits back to the
// YAML file. Reads vastly outnumber writes, hence the RWMutex.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// LoadSettings reads the settings file, falling back to defaults when
// the file does not exist.
func LoadSettings(path string) (*SettingsStore, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run; defaults apply until an admin edits settings.
	case err != nil:
		return nil, fmt.Errorf("read settings file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return nil, fmt.Errorf("parse settings file: %w", err)
		}
	}

	if settings.QueuePollInterval <= 0 {
		settings.QueuePollInterval = DefaultSettings().QueuePollInterval
	}

	return &SettingsStore{path: path, cur: settings}, nil
}

// Current returns a copy of the live settings.
func (st *SettingsStore) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cur
}

// Update replaces the live settings and persists them.
func (st *SettingsStore) Update(settings Settings) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(st.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	st.cur = settings
	return nil
}
