// Package tracking records training runs: parameters, metrics, and artifact
// locations. Runs live in a SQL store by default; an MLflow server can be
// used instead when a tracking URI is configured.
package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Tracker is the experiment logging surface the trainer writes through.
// Run ids are opaque strings so MLflow-issued ids fit the same interface.
type Tracker interface {
	StartRun(ctx context.Context, experiment, modelType string, tags map[string]string) (string, error)
	LogParam(ctx context.Context, runID, key, value string) error
	LogMetric(ctx context.Context, runID, key string, value float64) error
	LogArtifact(ctx context.Context, runID, path string) error
	EndRun(ctx context.Context, runID, status string) error
}

// SQLTracker stores runs in the gorm-managed tracking database.
type SQLTracker struct {
	db *gorm.DB
}

var _ Tracker = (*SQLTracker)(nil)

func NewSQLTracker(db *gorm.DB) *SQLTracker {
	return &SQLTracker{db: db}
}

func (t *SQLTracker) StartRun(ctx context.Context, experiment, modelType string, tags map[string]string) (string, error) {
	run := Run{
		Id:         uuid.New(),
		Experiment: experiment,
		ModelType:  modelType,
		Status:     RunRunning,
		StartTime:  time.Now().UTC(),
	}
	if len(tags) > 0 {
		encoded, err := json.Marshal(tags)
		if err != nil {
			return "", fmt.Errorf("failed to encode run tags: %w", err)
		}
		run.Tags = datatypes.JSON(encoded)
	}

	if err := t.db.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}
	return run.Id.String(), nil
}

func (t *SQLTracker) LogParam(ctx context.Context, runID, key, value string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	if err := t.db.WithContext(ctx).Create(&RunParam{RunId: id, Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("failed to log param %s: %w", key, err)
	}
	return nil
}

func (t *SQLTracker) LogMetric(ctx context.Context, runID, key string, value float64) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	if err := t.db.WithContext(ctx).Create(&RunMetric{RunId: id, Key: key, Value: value}).Error; err != nil {
		return fmt.Errorf("failed to log metric %s: %w", key, err)
	}
	return nil
}

func (t *SQLTracker) LogArtifact(ctx context.Context, runID, path string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	if err := t.db.WithContext(ctx).Create(&RunArtifact{RunId: id, Path: path}).Error; err != nil {
		return fmt.Errorf("failed to log artifact %s: %w", path, err)
	}
	return nil
}

func (t *SQLTracker) EndRun(ctx context.Context, runID, status string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	updates := map[string]any{
		"status":   status,
		"end_time": sql.NullTime{Time: time.Now().UTC(), Valid: true},
	}
	result := t.db.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to end run %s: %w", runID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no run with id %s", runID)
	}
	return nil
}

// ErrRunNotFound reports a lookup of a run id the store has never seen.
var ErrRunNotFound = errors.New("run not found")

// RunFilter narrows ListRuns. Zero values mean no filtering; Limit <= 0
// defaults to 50.
type RunFilter struct {
	Experiment string
	ModelType  string
	Limit      int
}

// ListRuns returns runs newest first.
func ListRuns(ctx context.Context, db *gorm.DB, filter RunFilter) ([]Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := db.WithContext(ctx).Order("start_time desc").Limit(limit)
	if filter.Experiment != "" {
		query = query.Where("experiment = ?", filter.Experiment)
	}
	if filter.ModelType != "" {
		query = query.Where("model_type = ?", filter.ModelType)
	}

	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun loads one run with its params, metrics, and artifacts.
func GetRun(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Run, error) {
	var run Run
	err := db.WithContext(ctx).
		Preload("Params").
		Preload("Metrics").
		Preload("Artifacts").
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRun returns the most recent run matching the filter, or
// ErrRunNotFound when nothing matches.
func LatestRun(ctx context.Context, db *gorm.DB, experiment, modelType string) (*Run, error) {
	runs, err := ListRuns(ctx, db, RunFilter{Experiment: experiment, ModelType: modelType, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return GetRun(ctx, db, runs[0].Id)
}
