package api

import (
	"heart-backend/internal/tracking"
	"heart-backend/pkg/models"
)

func convertRun(run tracking.Run) models.Run {
	out := models.Run{
		Id:         run.Id,
		Experiment: run.Experiment,
		ModelType:  run.ModelType,
		Status:     run.Status,
		StartTime:  run.StartTime,
	}
	if run.EndTime.Valid {
		endTime := run.EndTime.Time
		out.EndTime = &endTime
	}
	if len(run.Params) > 0 {
		out.Params = make(map[string]string, len(run.Params))
		for _, param := range run.Params {
			out.Params[param.Key] = param.Value
		}
	}
	if len(run.Metrics) > 0 {
		out.Metrics = make(map[string]float64, len(run.Metrics))
		for _, metric := range run.Metrics {
			out.Metrics[metric.Key] = metric.Value
		}
	}
	for _, artifact := range run.Artifacts {
		out.Artifacts = append(out.Artifacts, artifact.Path)
	}
	return out
}
