// Package training runs the offline model selection flow: split the dataset,
// fit the preprocessing pipeline, fit and evaluate each candidate classifier,
// log every run to the experiment tracker, and persist the best candidate's
// artifacts.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"heart-backend/internal/dataset"
	"heart-backend/internal/model"
	"heart-backend/internal/preprocess"
	"heart-backend/internal/tracking"
)

// Artifact file names within the artifact directory. The serving side loads
// exactly these two files at startup.
const (
	PreprocessorFile = "preprocessor.json"
	ModelFile        = "model.json"
)

type Config struct {
	Experiment   string
	TestFraction float64
	Seed         int64
	ArtifactDir  string
}

type CandidateResult struct {
	RunID     string
	ModelType string
	Metrics   model.BinaryMetrics
}

type Result struct {
	Best             CandidateResult
	Candidates       []CandidateResult
	PreprocessorPath string
	ModelPath        string
}

// Run executes the training flow. Tracker failures are logged and skipped:
// run records are advisory and never abort a training job.
func Run(ctx context.Context, frame *dataset.Frame, tracker tracking.Tracker, cfg Config) (*Result, error) {
	train, test, err := frame.Split(cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	slog.Info("dataset split", "train_rows", train.Len(), "test_rows", test.Len(), "seed", cfg.Seed)

	pipeline, err := preprocess.Fit(train, dataset.NumericColumns, dataset.CategoricalColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to fit preprocessing pipeline: %w", err)
	}

	trainFeatures, err := pipeline.TransformFrame(train)
	if err != nil {
		return nil, fmt.Errorf("failed to transform training set: %w", err)
	}
	testFeatures, err := pipeline.TransformFrame(test)
	if err != nil {
		// The pipeline was fitted on the training split only, so the test
		// split can legitimately hold categories it has never seen.
		return nil, fmt.Errorf("failed to transform test set: %w", err)
	}

	candidates := []model.Classifier{
		model.NewLogisticRegression(),
		model.NewRandomForest(cfg.Seed),
	}

	tags := map[string]string{
		"train_rows":   strconv.Itoa(train.Len()),
		"test_rows":    strconv.Itoa(test.Len()),
		"num_features": strconv.Itoa(pipeline.NumFeatures()),
	}

	result := &Result{}
	var best model.Classifier
	for _, candidate := range candidates {
		candidateResult, err := fitAndEvaluate(ctx, candidate, trainFeatures, train.Target, testFeatures, test.Target, tracker, cfg.Experiment, tags)
		if err != nil {
			return nil, err
		}
		result.Candidates = append(result.Candidates, candidateResult)

		slog.Info("candidate evaluated",
			"model_type", candidate.Type(),
			"roc_auc", candidateResult.Metrics.ROCAUC,
			"accuracy", candidateResult.Metrics.Accuracy,
		)

		if best == nil || candidateResult.Metrics.ROCAUC > result.Best.Metrics.ROCAUC {
			best = candidate
			result.Best = candidateResult
		}
	}

	result.PreprocessorPath = filepath.Join(cfg.ArtifactDir, PreprocessorFile)
	result.ModelPath = filepath.Join(cfg.ArtifactDir, ModelFile)

	if err := pipeline.Save(result.PreprocessorPath); err != nil {
		return nil, err
	}
	if err := model.Save(result.ModelPath, best); err != nil {
		return nil, err
	}
	logArtifacts(ctx, tracker, result)

	slog.Info("selected best model",
		"model_type", result.Best.ModelType,
		"run_id", result.Best.RunID,
		"roc_auc", result.Best.Metrics.ROCAUC,
	)
	return result, nil
}

func fitAndEvaluate(
	ctx context.Context,
	candidate model.Classifier,
	trainFeatures [][]float64, trainLabels []float64,
	testFeatures [][]float64, testLabels []float64,
	tracker tracking.Tracker,
	experiment string,
	tags map[string]string,
) (CandidateResult, error) {
	runID, err := tracker.StartRun(ctx, experiment, candidate.Type(), tags)
	if err != nil {
		slog.Warn("failed to start tracked run, continuing untracked", "model_type", candidate.Type(), "error", err)
	}

	logParams(ctx, tracker, runID, candidate)

	if err := candidate.Fit(trainFeatures, trainLabels); err != nil {
		endRun(ctx, tracker, runID, tracking.RunFailed)
		return CandidateResult{}, fmt.Errorf("failed to fit %s: %w", candidate.Type(), err)
	}

	scores := make([]float64, len(testFeatures))
	for i, features := range testFeatures {
		score, err := candidate.PredictProba(features)
		if err != nil {
			endRun(ctx, tracker, runID, tracking.RunFailed)
			return CandidateResult{}, fmt.Errorf("failed to score test row %d with %s: %w", i, candidate.Type(), err)
		}
		scores[i] = score
	}

	metrics, err := model.Evaluate(scores, testLabels)
	if err != nil {
		endRun(ctx, tracker, runID, tracking.RunFailed)
		return CandidateResult{}, fmt.Errorf("failed to evaluate %s: %w", candidate.Type(), err)
	}

	logMetrics(ctx, tracker, runID, metrics)
	endRun(ctx, tracker, runID, tracking.RunFinished)

	return CandidateResult{RunID: runID, ModelType: candidate.Type(), Metrics: metrics}, nil
}

func logParams(ctx context.Context, tracker tracking.Tracker, runID string, candidate model.Classifier) {
	if runID == "" {
		return
	}
	for key, value := range candidate.Params() {
		if err := tracker.LogParam(ctx, runID, key, value); err != nil {
			slog.Warn("failed to log param", "run_id", runID, "key", key, "error", err)
		}
	}
}

func logMetrics(ctx context.Context, tracker tracking.Tracker, runID string, metrics model.BinaryMetrics) {
	if runID == "" {
		return
	}
	for key, value := range metrics.Map() {
		if err := tracker.LogMetric(ctx, runID, key, value); err != nil {
			slog.Warn("failed to log metric", "run_id", runID, "key", key, "error", err)
		}
	}
}

func logArtifacts(ctx context.Context, tracker tracking.Tracker, result *Result) {
	if result.Best.RunID == "" {
		return
	}
	for _, path := range []string{result.PreprocessorPath, result.ModelPath} {
		if err := tracker.LogArtifact(ctx, result.Best.RunID, path); err != nil {
			slog.Warn("failed to log artifact", "run_id", result.Best.RunID, "path", path, "error", err)
		}
	}
}

func endRun(ctx context.Context, tracker tracking.Tracker, runID, status string) {
	if runID == "" {
		return
	}
	if err := tracker.EndRun(ctx, runID, status); err != nil {
		slog.Warn("failed to end run", "run_id", runID, "status", status, "error", err)
	}
}
