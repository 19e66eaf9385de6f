package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Priority contains weighting and starvation settings for the priority calculator.
type Priority struct {
	QualityWeight     float64 `toml:"quality_weight"`
	AgeWeight         float64 `toml:"age_weight"`
	UserRequestWeight float64 `toml:"user_request_weight"`
	ContextWeight     float64 `toml:"context_weight"`

	MaxAgeHours     float64 `toml:"max_age_hours"`
	AgeBoostPerHour float64 `toml:"age_boost_per_hour"`

	StarvationThresholdHours float64 `toml:"starvation_threshold_hours"`
	StarvationBoost          int     `toml:"starvation_boost"`

	// ContextScores maps a shoot context class to a 0-10 score. Unknown
	// classes fall back to DefaultContextScore.
	ContextScores       map[string]float64 `toml:"context_scores"`
	DefaultContextScore float64            `toml:"default_context_score"`
}

// Resources contains sampling intervals and classification thresholds for the
// resource monitor.
type Resources struct {
	SampleInterval int `toml:"sample_interval"`
	HistorySize    int `toml:"history_size"`
	IdleThreshold  int `toml:"idle_threshold"`

	CPUCriticalPercent    float64 `toml:"cpu_critical_percent"`
	MemoryCriticalPercent float64 `toml:"memory_critical_percent"`
	GPUTempCriticalC      float64 `toml:"gpu_temp_critical_c"`

	CPUBusyPercent    float64 `toml:"cpu_busy_percent"`
	MemoryBusyPercent float64 `toml:"memory_busy_percent"`
	GPUTempBusyC      float64 `toml:"gpu_temp_busy_c"`
	GPULoadBusy       float64 `toml:"gpu_load_busy_percent"`

	CPUIdlePercent    float64 `toml:"cpu_idle_percent"`
	MemoryIdlePercent float64 `toml:"memory_idle_percent"`
	GPULoadIdle       float64 `toml:"gpu_load_idle_percent"`

	GPUEnabled bool `toml:"gpu_enabled"`
}

// Dispatcher contains execution backend settings.
type Dispatcher struct {
	// Backend selects the execution backend adapter: "memory" or "nats".
	Backend             string `toml:"backend"`
	NATSURL             string `toml:"nats_url"`
	SubjectPrefix       string `toml:"subject_prefix"`
	SubmitTimeout       int    `toml:"submit_timeout"`
	RushLaneMinPriority int    `toml:"rush_lane_min_priority"`
	BulkLaneMaxPriority int    `toml:"bulk_lane_max_priority"`
}

// Batch contains batch lifecycle settings.
type Batch struct {
	RetentionDays   int `toml:"retention_days"`
	DefaultPriority int `toml:"default_priority"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for darkroom.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories and API bind address
//   - Priority: scoring weights, age boost, starvation thresholds
//   - Resources: sampling interval and state classification thresholds
//   - Dispatcher: execution backend selection and timeouts
//   - Batch: retention and default submission priority
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Priority   Priority   `toml:"priority"`
	Resources  Resources  `toml:"resources"`
	Dispatcher Dispatcher `toml:"dispatcher"`
	Batch      Batch      `toml:"batch"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/darkroom/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The second return value is the
// resolved path and the third reports whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the state and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.BatchStateDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// BatchStateDir returns the directory holding per-batch snapshot files.
func (c *Config) BatchStateDir() string {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, "batches")
}

// JobDBPath returns the path of the dispatcher job database.
func (c *Config) JobDBPath() string {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// CatalogPath returns the path of the photo catalog export.
func (c *Config) CatalogPath() string {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, "catalog.json")
}
