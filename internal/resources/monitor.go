package resources

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
)

// StateCallback is invoked synchronously when classification changes.
type StateCallback func(old, new State)

// Status is a read-only projection of monitor state.
type Status struct {
	State           State   `json:"state"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	Throttling      bool    `json:"throttling"`
	Idle            bool    `json:"idle"`
	IdleSeconds     float64 `json:"idle_seconds"`
	Latest          *Sample `json:"latest,omitempty"`
	AvgCPUPercent   float64 `json:"avg_cpu_percent"`
	AvgMemPercent   float64 `json:"avg_mem_percent"`
}

// Monitor samples system telemetry on a fixed interval and classifies load
// into one of four states. The sampling loop is the sole writer; all query
// methods are lock-free for writers and never block on sampling.
type Monitor struct {
	collector Collector
	logger    *slog.Logger
	interval  time.Duration

	mu            sync.RWMutex
	thresholds    Thresholds
	historySize   int
	idleThreshold time.Duration
	history       []Sample
	state         State
	idleSince     time.Time
	callbacks     []StateCallback

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor constructs a monitor from configuration. A nil collector
// defaults to the system collector.
func NewMonitor(cfg *config.Config, collector Collector, logger *slog.Logger) *Monitor {
	if collector == nil {
		collector = NewSystemCollector(cfg.Paths.StateDir, cfg.Resources.GPUEnabled)
	}
	return &Monitor{
		collector:     collector,
		logger:        logging.NewComponentLogger(logger, "resources"),
		interval:      time.Duration(cfg.Resources.SampleInterval) * time.Second,
		thresholds:    ThresholdsFromConfig(cfg),
		historySize:   cfg.Resources.HistorySize,
		idleThreshold: time.Duration(cfg.Resources.IdleThreshold) * time.Second,
		state:         StateNormal,
	}
}

// Sample collects one telemetry reading, reclassifies state, and fires
// callbacks when the classification changed. Collection failures are logged
// and the previous known state is retained.
func (m *Monitor) Sample(ctx context.Context) State {
	sample, err := m.collector.Collect(ctx)
	if err != nil {
		m.logger.Warn("telemetry collection failed, keeping previous state",
			logging.Error(err),
			logging.String(logging.FieldEventType, "resource_sample_failed"))
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.state
	}

	m.mu.Lock()
	old := m.state
	next := m.thresholds.Classify(sample)

	m.history = append(m.history, sample)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}

	if next == StateIdle {
		if m.idleSince.IsZero() {
			m.idleSince = sample.Timestamp
		}
	} else {
		m.idleSince = time.Time{}
	}

	m.state = next
	callbacks := m.callbacks
	m.mu.Unlock()

	if next != old {
		m.logger.Info("resource state changed",
			logging.String("from", string(old)),
			logging.String("to", string(next)),
			logging.Float64("cpu_percent", sample.CPUPercent),
			logging.Float64("memory_percent", sample.MemoryPercent))
		for _, callback := range callbacks {
			callback(old, next)
		}
	}
	return next
}

// Start launches the background sampling loop. It fails if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return errors.New("resource monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Sample(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.Sample(runCtx)
			}
		}
	}()

	m.logger.Info("resource monitoring started", logging.Duration("interval", m.interval))
	return nil
}

// Stop terminates the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.runMu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("resource monitoring stopped")
}

// RegisterCallback adds a synchronous state-change listener.
func (m *Monitor) RegisterCallback(callback StateCallback) {
	if callback == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	callbacks := make([]StateCallback, len(m.callbacks), len(m.callbacks)+1)
	copy(callbacks, m.callbacks)
	m.callbacks = append(callbacks, callback)
}

// UpdateThresholds swaps classification thresholds. The next sample is
// classified with the new values.
func (m *Monitor) UpdateThresholds(thresholds Thresholds) {
	m.mu.Lock()
	m.thresholds = thresholds
	m.mu.Unlock()
	m.logger.Info("resource thresholds updated")
}

// State returns the current classification.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ShouldThrottle reports whether submissions should slow down or pause.
func (m *Monitor) ShouldThrottle() bool {
	state := m.State()
	return state == StateBusy || state == StateCritical
}

// SpeedMultiplier returns the recommended submission speed factor.
func (m *Monitor) SpeedMultiplier() float64 {
	return SpeedMultiplier(m.State())
}

// IsIdle reports whether the contiguous idle run has reached the configured
// threshold.
func (m *Monitor) IsIdle() bool {
	return m.IdleDuration() >= m.idleThreshold
}

// IdleDuration returns the length of the current contiguous idle run, or
// zero when the latest sample was not idle.
func (m *Monitor) IdleDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.idleSince.IsZero() {
		return 0
	}
	return time.Since(m.idleSince)
}

// Latest returns the most recent completed sample without blocking on the
// sampling loop.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return Sample{}, false
	}
	return m.history[len(m.history)-1], true
}

// CPUPercent returns the CPU usage from the latest sample.
func (m *Monitor) CPUPercent() float64 {
	sample, ok := m.Latest()
	if !ok {
		return 0
	}
	return sample.CPUPercent
}

// MemoryPercent returns the memory usage from the latest sample.
func (m *Monitor) MemoryPercent() float64 {
	sample, ok := m.Latest()
	if !ok {
		return 0
	}
	return sample.MemoryPercent
}

// GPU returns GPU telemetry from the latest sample, if present.
func (m *Monitor) GPU() (GPUStat, bool) {
	sample, ok := m.Latest()
	if !ok || sample.GPU == nil {
		return GPUStat{}, false
	}
	return *sample.GPU, true
}

// Status assembles a read-only projection including history averages.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	state := m.state
	history := m.history
	var latest *Sample
	if len(history) > 0 {
		cp := history[len(history)-1]
		latest = &cp
	}
	var cpuSum, memSum float64
	for _, sample := range history {
		cpuSum += sample.CPUPercent
		memSum += sample.MemoryPercent
	}
	count := len(history)
	idleSince := m.idleSince
	m.mu.RUnlock()

	status := Status{
		State:           state,
		SpeedMultiplier: SpeedMultiplier(state),
		Throttling:      state == StateBusy || state == StateCritical,
		Latest:          latest,
	}
	if !idleSince.IsZero() {
		idleFor := time.Since(idleSince)
		status.IdleSeconds = idleFor.Seconds()
		status.Idle = idleFor >= m.idleThreshold
	}
	if count > 0 {
		status.AvgCPUPercent = cpuSum / float64(count)
		status.AvgMemPercent = memSum / float64(count)
	}
	return status
}
