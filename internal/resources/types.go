package resources

import (
	"time"

	"darkroom/internal/config"
)

// State classifies overall system load.
type State string

const (
	StateIdle     State = "idle"
	StateNormal   State = "normal"
	StateBusy     State = "busy"
	StateCritical State = "critical"
)

// GPUStat carries optional GPU telemetry for a sample.
type GPUStat struct {
	LoadPercent  float64 `json:"load_percent"`
	TemperatureC float64 `json:"temperature_c"`
}

// Sample is one timestamped telemetry reading.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	GPU           *GPUStat  `json:"gpu,omitempty"`
}

// Thresholds holds the classification boundaries. Rules are evaluated in
// order: critical, busy, idle, otherwise normal. First match wins.
type Thresholds struct {
	CPUCritical     float64
	MemoryCritical  float64
	GPUTempCritical float64

	CPUBusy     float64
	MemoryBusy  float64
	GPUTempBusy float64
	GPULoadBusy float64

	CPUIdle     float64
	MemoryIdle  float64
	GPULoadIdle float64
}

// ThresholdsFromConfig extracts classification thresholds from configuration.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		CPUCritical:     cfg.Resources.CPUCriticalPercent,
		MemoryCritical:  cfg.Resources.MemoryCriticalPercent,
		GPUTempCritical: cfg.Resources.GPUTempCriticalC,
		CPUBusy:         cfg.Resources.CPUBusyPercent,
		MemoryBusy:      cfg.Resources.MemoryBusyPercent,
		GPUTempBusy:     cfg.Resources.GPUTempBusyC,
		GPULoadBusy:     cfg.Resources.GPULoadBusy,
		CPUIdle:         cfg.Resources.CPUIdlePercent,
		MemoryIdle:      cfg.Resources.MemoryIdlePercent,
		GPULoadIdle:     cfg.Resources.GPULoadIdle,
	}
}

// Classify maps a sample onto a state using the ordered rules.
func (t Thresholds) Classify(sample Sample) State {
	if sample.CPUPercent >= t.CPUCritical || sample.MemoryPercent >= t.MemoryCritical {
		return StateCritical
	}
	if sample.GPU != nil && sample.GPU.TemperatureC >= t.GPUTempCritical {
		return StateCritical
	}

	if sample.CPUPercent >= t.CPUBusy || sample.MemoryPercent >= t.MemoryBusy {
		return StateBusy
	}
	if sample.GPU != nil && (sample.GPU.TemperatureC >= t.GPUTempBusy || sample.GPU.LoadPercent >= t.GPULoadBusy) {
		return StateBusy
	}

	if sample.CPUPercent < t.CPUIdle && sample.MemoryPercent < t.MemoryIdle &&
		(sample.GPU == nil || sample.GPU.LoadPercent < t.GPULoadIdle) {
		return StateIdle
	}

	return StateNormal
}

// SpeedMultiplier returns the recommended submission speed factor for a state.
func SpeedMultiplier(state State) float64 {
	switch state {
	case StateIdle:
		return 1.0
	case StateNormal:
		return 0.8
	case StateBusy:
		return 0.5
	case StateCritical:
		return 0.0
	default:
		return 0.8
	}
}
