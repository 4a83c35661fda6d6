package tracking

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

// MLflowTracker logs runs to an MLflow tracking server through its REST API.
// Artifact files stay on the trainer's side; only their locations are
// recorded, as run tags.
type MLflowTracker struct {
	client *resty.Client
}

var _ Tracker = (*MLflowTracker)(nil)

func NewMLflowTracker(trackingURI string) *MLflowTracker {
	return &MLflowTracker{
		client: resty.New().SetBaseURL(trackingURI).SetTimeout(30 * time.Second),
	}
}

type mlflowError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (t *MLflowTracker) post(ctx context.Context, endpoint string, body any, result any) error {
	var apiErr mlflowError
	req := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetError(&apiErr)
	if result != nil {
		req = req.SetResult(result)
	}

	res, err := req.Post(endpoint)
	if err != nil {
		return fmt.Errorf("mlflow request %s failed: %w", endpoint, err)
	}
	if res.IsError() {
		return fmt.Errorf("mlflow request %s returned %s: %s", endpoint, res.Status(), apiErr.Message)
	}
	return nil
}

// experimentID resolves an experiment by name, creating it if absent.
func (t *MLflowTracker) experimentID(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ExperimentId string `json:"experiment_id"`
		} `json:"experiment"`
	}
	res, err := t.client.R().
		SetContext(ctx).
		SetQueryParam("experiment_name", name).
		SetResult(&got).
		Get("/api/2.0/mlflow/experiments/get-by-name")
	if err != nil {
		return "", fmt.Errorf("mlflow experiment lookup failed: %w", err)
	}
	if !res.IsError() {
		return got.Experiment.ExperimentId, nil
	}

	var created struct {
		ExperimentId string `json:"experiment_id"`
	}
	if err := t.post(ctx, "/api/2.0/mlflow/experiments/create", map[string]string{"name": name}, &created); err != nil {
		return "", err
	}
	return created.ExperimentId, nil
}

func (t *MLflowTracker) StartRun(ctx context.Context, experiment, modelType string, tags map[string]string) (string, error) {
	experimentID, err := t.experimentID(ctx, experiment)
	if err != nil {
		return "", err
	}

	type runTag struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	runTags := []runTag{{Key: "model_type", Value: modelType}}
	for key, value := range tags {
		runTags = append(runTags, runTag{Key: key, Value: value})
	}

	var created struct {
		Run struct {
			Info struct {
				RunId string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	body := map[string]any{
		"experiment_id": experimentID,
		"start_time":    time.Now().UnixMilli(),
		"tags":          runTags,
	}
	if err := t.post(ctx, "/api/2.0/mlflow/runs/create", body, &created); err != nil {
		return "", err
	}
	if created.Run.Info.RunId == "" {
		return "", fmt.Errorf("mlflow run creation returned no run id")
	}
	return created.Run.Info.RunId, nil
}

func (t *MLflowTracker) LogParam(ctx context.Context, runID, key, value string) error {
	return t.post(ctx, "/api/2.0/mlflow/runs/log-parameter", map[string]any{
		"run_id": runID,
		"key":    key,
		"value":  value,
	}, nil)
}

func (t *MLflowTracker) LogMetric(ctx context.Context, runID, key string, value float64) error {
	return t.post(ctx, "/api/2.0/mlflow/runs/log-metric", map[string]any{
		"run_id":    runID,
		"key":       key,
		"value":     value,
		"timestamp": time.Now().UnixMilli(),
	}, nil)
}

func (t *MLflowTracker) LogArtifact(ctx context.Context, runID, path string) error {
	// The REST API has no JSON artifact upload; record the location instead,
	// keyed per file so multiple artifacts do not overwrite each other.
	return t.post(ctx, "/api/2.0/mlflow/runs/set-tag", map[string]any{
		"run_id": runID,
		"key":    "artifact_location." + filepath.Base(path),
		"value":  path,
	}, nil)
}

func (t *MLflowTracker) EndRun(ctx context.Context, runID, status string) error {
	return t.post(ctx, "/api/2.0/mlflow/runs/update", map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}, nil)
}
