package resources

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Collector produces telemetry samples. Implementations must be safe for use
// from a single sampling goroutine.
type Collector interface {
	Collect(ctx context.Context) (Sample, error)
}

// SystemCollector reads CPU, memory, and disk telemetry from the local
// system, optionally probing nvidia-smi for GPU load and temperature.
type SystemCollector struct {
	diskPath   string
	gpuEnabled bool

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

// NewSystemCollector builds a collector. diskPath is the filesystem whose
// usage is reported (normally the state directory).
func NewSystemCollector(diskPath string, gpuEnabled bool) *SystemCollector {
	return &SystemCollector{diskPath: diskPath, gpuEnabled: gpuEnabled}
}

// Collect implements Collector.
func (c *SystemCollector) Collect(ctx context.Context) (Sample, error) {
	sample := Sample{Timestamp: time.Now().UTC()}

	cpu, err := c.cpuPercent()
	if err != nil {
		return Sample{}, fmt.Errorf("read cpu usage: %w", err)
	}
	sample.CPUPercent = cpu

	mem, err := memoryPercent()
	if err != nil {
		return Sample{}, fmt.Errorf("read memory usage: %w", err)
	}
	sample.MemoryPercent = mem

	if c.diskPath != "" {
		disk, err := diskPercent(c.diskPath)
		if err != nil {
			return Sample{}, fmt.Errorf("read disk usage: %w", err)
		}
		sample.DiskPercent = disk
	}

	if c.gpuEnabled {
		// GPU telemetry is best-effort; a missing or failing nvidia-smi
		// leaves the sample without GPU data.
		if gpu, err := gpuStat(ctx); err == nil {
			sample.GPU = gpu
		}
	}

	return sample, nil
}

// cpuPercent computes utilization from /proc/stat deltas between calls. The
// first call reports the average since boot.
func (c *SystemCollector) cpuPercent() (float64, error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, err
	}

	var idle, total uint64
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		for i, field := range fields {
			value, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse cpu field %q: %w", field, err)
			}
			total += value
			// idle + iowait
			if i == 3 || i == 4 {
				idle += value
			}
		}
		break
	}
	if total == 0 {
		return 0, fmt.Errorf("no cpu line in /proc/stat")
	}

	c.mu.Lock()
	deltaIdle := idle - c.prevIdle
	deltaTotal := total - c.prevTotal
	c.prevIdle = idle
	c.prevTotal = total
	c.mu.Unlock()

	if deltaTotal == 0 {
		return 0, nil
	}
	return 100.0 * (1.0 - float64(deltaIdle)/float64(deltaTotal)), nil
}

func memoryPercent() (float64, error) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, err
	}

	var total, available uint64
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = value
		case "MemAvailable:":
			available = value
		}
	}
	if total == 0 {
		return 0, fmt.Errorf("no MemTotal in /proc/meminfo")
	}
	return 100.0 * (1.0 - float64(available)/float64(total)), nil
}

func diskPercent(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	if stat.Blocks == 0 {
		return 0, nil
	}
	return 100.0 * (1.0 - float64(stat.Bavail)/float64(stat.Blocks)), nil
}

func gpuStat(ctx context.Context) (*GPUStat, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "nvidia-smi",
		"--query-gpu=utilization.gpu,temperature.gpu",
		"--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run nvidia-smi: %w", err)
	}

	line := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected nvidia-smi output %q", line)
	}
	load, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("parse gpu load %q: %w", parts[0], err)
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("parse gpu temperature %q: %w", parts[1], err)
	}
	return &GPUStat{LoadPercent: load, TemperatureC: temp}, nil
}
