package daemon

import (
	"darkroom/internal/api"
	"darkroom/internal/priority"
	"darkroom/internal/resources"
)

func priorityWeights(req api.UpdateWeightsRequest) priority.Weights {
	return priority.Weights{
		Quality:     req.Quality,
		Age:         req.Age,
		UserRequest: req.UserRequest,
		Context:     req.Context,
	}
}

func resourceThresholds(req api.ThresholdsRequest) resources.Thresholds {
	return resources.Thresholds{
		CPUCritical:     req.CPUCritical,
		MemoryCritical:  req.MemoryCritical,
		GPUTempCritical: req.GPUTempCritical,
		CPUBusy:         req.CPUBusy,
		MemoryBusy:      req.MemoryBusy,
		GPUTempBusy:     req.GPUTempBusy,
		GPULoadBusy:     req.GPULoadBusy,
		CPUIdle:         req.CPUIdle,
		MemoryIdle:      req.MemoryIdle,
		GPULoadIdle:     req.GPULoadIdle,
	}
}
