package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that cannot be repaired by
// normalization. It returns the first problem encountered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}

	weights := []struct {
		name  string
		value float64
	}{
		{"priority.quality_weight", c.Priority.QualityWeight},
		{"priority.age_weight", c.Priority.AgeWeight},
		{"priority.user_request_weight", c.Priority.UserRequestWeight},
		{"priority.context_weight", c.Priority.ContextWeight},
	}
	sum := 0.0
	for _, w := range weights {
		if w.value < 0 {
			return fmt.Errorf("%s must not be negative", w.name)
		}
		sum += w.value
	}
	if sum <= 0 {
		return errors.New("priority weights must not all be zero")
	}

	if c.Priority.MaxAgeHours <= 0 {
		return errors.New("priority.max_age_hours must be positive")
	}
	if c.Priority.AgeBoostPerHour < 0 {
		return errors.New("priority.age_boost_per_hour must not be negative")
	}
	if c.Priority.StarvationThresholdHours <= 0 {
		return errors.New("priority.starvation_threshold_hours must be positive")
	}
	if c.Priority.StarvationBoost < 0 {
		return errors.New("priority.starvation_boost must not be negative")
	}

	if c.Resources.CPUCriticalPercent < c.Resources.CPUBusyPercent {
		return errors.New("resources.cpu_critical_percent must be at least cpu_busy_percent")
	}
	if c.Resources.MemoryCriticalPercent < c.Resources.MemoryBusyPercent {
		return errors.New("resources.memory_critical_percent must be at least memory_busy_percent")
	}
	if c.Resources.CPUIdlePercent >= c.Resources.CPUBusyPercent {
		return errors.New("resources.cpu_idle_percent must be below cpu_busy_percent")
	}

	switch c.Dispatcher.Backend {
	case "memory":
	case "nats":
		if strings.TrimSpace(c.Dispatcher.NATSURL) == "" {
			return errors.New("dispatcher.nats_url must be set when backend is nats")
		}
	default:
		return fmt.Errorf("dispatcher.backend: unsupported value %q", c.Dispatcher.Backend)
	}

	if c.Dispatcher.RushLaneMinPriority < 1 || c.Dispatcher.RushLaneMinPriority > 10 {
		return errors.New("dispatcher.rush_lane_min_priority must be within 1-10")
	}
	if c.Dispatcher.BulkLaneMaxPriority < 0 || c.Dispatcher.BulkLaneMaxPriority >= c.Dispatcher.RushLaneMinPriority {
		return errors.New("dispatcher.bulk_lane_max_priority must be below rush_lane_min_priority")
	}

	if c.Batch.DefaultPriority < 1 || c.Batch.DefaultPriority > 10 {
		return errors.New("batch.default_priority must be within 1-10")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}

	return nil
}
