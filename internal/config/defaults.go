package config

const (
	defaultStateDir = "~/.local/share/darkroom/state"
	defaultLogDir   = "~/.local/share/darkroom/logs"
	defaultAPIBind  = "127.0.0.1:7319"

	defaultQualityWeight     = 0.4
	defaultAgeWeight         = 0.3
	defaultUserRequestWeight = 0.2
	defaultContextWeight     = 0.1

	defaultMaxAgeHours     = 48.0
	defaultAgeBoostPerHour = 0.2

	defaultStarvationThresholdHours = 24.0
	defaultStarvationBoost          = 2

	defaultContextScore = 5.0

	defaultSampleInterval = 5
	defaultHistorySize    = 120
	defaultIdleThreshold  = 300

	defaultCPUCriticalPercent    = 95.0
	defaultMemoryCriticalPercent = 95.0
	defaultGPUTempCriticalC      = 85.0
	defaultCPUBusyPercent        = 80.0
	defaultMemoryBusyPercent     = 85.0
	defaultGPUTempBusyC          = 75.0
	defaultGPULoadBusy           = 85.0
	defaultCPUIdlePercent        = 20.0
	defaultMemoryIdlePercent     = 50.0
	defaultGPULoadIdle           = 20.0

	defaultBackend             = "memory"
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultSubjectPrefix       = "darkroom.tasks"
	defaultSubmitTimeout       = 10
	defaultRushLaneMinPriority = 8
	defaultBulkLaneMaxPriority = 3

	defaultRetentionDays   = 30
	defaultBatchPriority   = 5
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Priority: Priority{
			QualityWeight:            defaultQualityWeight,
			AgeWeight:                defaultAgeWeight,
			UserRequestWeight:        defaultUserRequestWeight,
			ContextWeight:            defaultContextWeight,
			MaxAgeHours:              defaultMaxAgeHours,
			AgeBoostPerHour:          defaultAgeBoostPerHour,
			StarvationThresholdHours: defaultStarvationThresholdHours,
			StarvationBoost:          defaultStarvationBoost,
			ContextScores: map[string]float64{
				"wedding":   9,
				"portrait":  7,
				"event":     6,
				"family":    6,
				"landscape": 4,
				"test_shot": 2,
			},
			DefaultContextScore: defaultContextScore,
		},
		Resources: Resources{
			SampleInterval:        defaultSampleInterval,
			HistorySize:           defaultHistorySize,
			IdleThreshold:         defaultIdleThreshold,
			CPUCriticalPercent:    defaultCPUCriticalPercent,
			MemoryCriticalPercent: defaultMemoryCriticalPercent,
			GPUTempCriticalC:      defaultGPUTempCriticalC,
			CPUBusyPercent:        defaultCPUBusyPercent,
			MemoryBusyPercent:     defaultMemoryBusyPercent,
			GPUTempBusyC:          defaultGPUTempBusyC,
			GPULoadBusy:           defaultGPULoadBusy,
			CPUIdlePercent:        defaultCPUIdlePercent,
			MemoryIdlePercent:     defaultMemoryIdlePercent,
			GPULoadIdle:           defaultGPULoadIdle,
		},
		Dispatcher: Dispatcher{
			Backend:             defaultBackend,
			NATSURL:             defaultNATSURL,
			SubjectPrefix:       defaultSubjectPrefix,
			SubmitTimeout:       defaultSubmitTimeout,
			RushLaneMinPriority: defaultRushLaneMinPriority,
			BulkLaneMaxPriority: defaultBulkLaneMaxPriority,
		},
		Batch: Batch{
			RetentionDays:   defaultRetentionDays,
			DefaultPriority: defaultBatchPriority,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
