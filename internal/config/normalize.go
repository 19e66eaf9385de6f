package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// normalize expands user paths and fills empty fields with defaults so the
// rest of the system never needs to re-check them.
func (c *Config) normalize() error {
	defaults := Default()

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaults.Paths.StateDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaults.Paths.LogDir
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaults.Paths.APIBind
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"state_dir", &c.Paths.StateDir},
		{"log_dir", &c.Paths.LogDir},
	} {
		expanded, err := expandPath(*field.value)
		if err != nil {
			return fmt.Errorf("expand %s: %w", field.name, err)
		}
		*field.value = expanded
	}

	c.Dispatcher.Backend = strings.ToLower(strings.TrimSpace(c.Dispatcher.Backend))
	if c.Dispatcher.Backend == "" {
		c.Dispatcher.Backend = defaults.Dispatcher.Backend
	}
	if strings.TrimSpace(c.Dispatcher.SubjectPrefix) == "" {
		c.Dispatcher.SubjectPrefix = defaults.Dispatcher.SubjectPrefix
	}
	if c.Dispatcher.SubmitTimeout <= 0 {
		c.Dispatcher.SubmitTimeout = defaults.Dispatcher.SubmitTimeout
	}

	if c.Resources.SampleInterval <= 0 {
		c.Resources.SampleInterval = defaults.Resources.SampleInterval
	}
	if c.Resources.HistorySize <= 0 {
		c.Resources.HistorySize = defaults.Resources.HistorySize
	}
	if c.Resources.IdleThreshold <= 0 {
		c.Resources.IdleThreshold = defaults.Resources.IdleThreshold
	}

	if c.Priority.ContextScores == nil {
		c.Priority.ContextScores = defaults.Priority.ContextScores
	}
	if c.Priority.DefaultContextScore <= 0 {
		c.Priority.DefaultContextScore = defaults.Priority.DefaultContextScore
	}

	if c.Batch.RetentionDays <= 0 {
		c.Batch.RetentionDays = defaults.Batch.RetentionDays
	}
	if c.Batch.DefaultPriority <= 0 {
		c.Batch.DefaultPriority = defaults.Batch.DefaultPriority
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}

	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
