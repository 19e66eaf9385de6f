package resources_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/resources"
)

type stubCollector struct {
	mu      sync.Mutex
	samples []resources.Sample
	err     error
	index   int
}

func (c *stubCollector) push(sample resources.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, sample)
}

func (c *stubCollector) Collect(context.Context) (resources.Sample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return resources.Sample{}, c.err
	}
	if len(c.samples) == 0 {
		return resources.Sample{Timestamp: time.Now()}, nil
	}
	sample := c.samples[c.index]
	if c.index < len(c.samples)-1 {
		c.index++
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	return sample, nil
}

func newMonitor(t *testing.T, collector resources.Collector) *resources.Monitor {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	return resources.NewMonitor(&cfg, collector, logging.NewNop())
}

func TestClassification(t *testing.T) {
	cfg := config.Default()
	thresholds := resources.ThresholdsFromConfig(&cfg)

	cases := []struct {
		name   string
		sample resources.Sample
		want   resources.State
	}{
		{"idle", resources.Sample{CPUPercent: 15, MemoryPercent: 40}, resources.StateIdle},
		{"normal", resources.Sample{CPUPercent: 50, MemoryPercent: 60}, resources.StateNormal},
		{"busy cpu", resources.Sample{CPUPercent: 85, MemoryPercent: 40}, resources.StateBusy},
		{"critical cpu", resources.Sample{CPUPercent: 96, MemoryPercent: 40}, resources.StateCritical},
		{"critical memory", resources.Sample{CPUPercent: 10, MemoryPercent: 97}, resources.StateCritical},
		{"busy memory", resources.Sample{CPUPercent: 30, MemoryPercent: 86}, resources.StateBusy},
		{"gpu temp critical", resources.Sample{CPUPercent: 10, MemoryPercent: 30, GPU: &resources.GPUStat{TemperatureC: 86}}, resources.StateCritical},
		{"gpu load busy", resources.Sample{CPUPercent: 10, MemoryPercent: 30, GPU: &resources.GPUStat{LoadPercent: 90, TemperatureC: 50}}, resources.StateBusy},
		{"gpu load blocks idle", resources.Sample{CPUPercent: 10, MemoryPercent: 30, GPU: &resources.GPUStat{LoadPercent: 30, TemperatureC: 40}}, resources.StateNormal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := thresholds.Classify(tc.sample); got != tc.want {
				t.Fatalf("Classify(%+v) = %s, want %s", tc.sample, got, tc.want)
			}
		})
	}
}

func TestSpeedMultiplier(t *testing.T) {
	cases := map[resources.State]float64{
		resources.StateIdle:     1.0,
		resources.StateNormal:   0.8,
		resources.StateBusy:     0.5,
		resources.StateCritical: 0.0,
	}
	for state, want := range cases {
		if got := resources.SpeedMultiplier(state); got != want {
			t.Fatalf("SpeedMultiplier(%s) = %v, want %v", state, got, want)
		}
	}
}

func TestSampleFiresCallbackOnChangeOnly(t *testing.T) {
	collector := &stubCollector{}
	collector.push(resources.Sample{CPUPercent: 50, MemoryPercent: 60})
	monitor := newMonitor(t, collector)

	var transitions []string
	monitor.RegisterCallback(func(old, next resources.State) {
		transitions = append(transitions, string(old)+"->"+string(next))
	})

	ctx := context.Background()
	monitor.Sample(ctx) // normal -> normal, no change
	if len(transitions) != 0 {
		t.Fatalf("unexpected callback for unchanged state: %v", transitions)
	}

	collector.push(resources.Sample{CPUPercent: 96, MemoryPercent: 60})
	collector.mu.Lock()
	collector.index = 1
	collector.mu.Unlock()
	if got := monitor.Sample(ctx); got != resources.StateCritical {
		t.Fatalf("state = %s, want critical", got)
	}
	if len(transitions) != 1 || transitions[0] != "normal->critical" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	if !monitor.ShouldThrottle() {
		t.Fatal("critical state must throttle")
	}
	if monitor.SpeedMultiplier() != 0.0 {
		t.Fatalf("critical multiplier = %v, want 0.0", monitor.SpeedMultiplier())
	}
}

func TestSampleFailureKeepsPreviousState(t *testing.T) {
	collector := &stubCollector{}
	collector.push(resources.Sample{CPUPercent: 85, MemoryPercent: 40})
	monitor := newMonitor(t, collector)

	ctx := context.Background()
	if got := monitor.Sample(ctx); got != resources.StateBusy {
		t.Fatalf("state = %s, want busy", got)
	}

	collector.mu.Lock()
	collector.err = context.DeadlineExceeded
	collector.mu.Unlock()

	if got := monitor.Sample(ctx); got != resources.StateBusy {
		t.Fatalf("state after failed sample = %s, want busy", got)
	}
	if _, ok := monitor.Latest(); !ok {
		t.Fatal("latest sample should survive a failed collection")
	}
}

func TestIdleRunResetsOnNonIdleSample(t *testing.T) {
	collector := &stubCollector{}
	collector.push(resources.Sample{CPUPercent: 10, MemoryPercent: 30, Timestamp: time.Now().Add(-10 * time.Minute)})
	monitor := newMonitor(t, collector)

	ctx := context.Background()
	monitor.Sample(ctx)
	if !monitor.IsIdle() {
		t.Fatalf("expected idle run past threshold, duration %v", monitor.IdleDuration())
	}

	collector.push(resources.Sample{CPUPercent: 70, MemoryPercent: 60})
	collector.mu.Lock()
	collector.index = 1
	collector.mu.Unlock()
	monitor.Sample(ctx)
	if monitor.IsIdle() {
		t.Fatal("non-idle sample must reset the idle run")
	}
	if monitor.IdleDuration() != 0 {
		t.Fatalf("idle duration = %v, want 0", monitor.IdleDuration())
	}
}

func TestStartStopSamplingLoop(t *testing.T) {
	collector := &stubCollector{}
	collector.push(resources.Sample{CPUPercent: 50, MemoryPercent: 60})

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Resources.SampleInterval = 1
	monitor := resources.NewMonitor(&cfg, collector, logging.NewNop())

	ctx := context.Background()
	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := monitor.Start(ctx); err == nil {
		t.Fatal("second Start should fail while running")
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := monitor.Latest(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sampling loop produced no sample")
		case <-time.After(10 * time.Millisecond):
		}
	}

	monitor.Stop()
	monitor.Stop() // second stop is a no-op
}

func TestUpdateThresholdsAppliesToNextSample(t *testing.T) {
	collector := &stubCollector{}
	collector.push(resources.Sample{CPUPercent: 70, MemoryPercent: 60})
	monitor := newMonitor(t, collector)

	ctx := context.Background()
	if got := monitor.Sample(ctx); got != resources.StateNormal {
		t.Fatalf("state = %s, want normal", got)
	}

	cfg := config.Default()
	thresholds := resources.ThresholdsFromConfig(&cfg)
	thresholds.CPUBusy = 60
	monitor.UpdateThresholds(thresholds)

	if got := monitor.Sample(ctx); got != resources.StateBusy {
		t.Fatalf("state after threshold update = %s, want busy", got)
	}
}
