package tracking_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"heart-backend/internal/tracking"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, tracking.GetMigrator(db).Migrate())
	return db
}

func TestSQLTrackerRunLifecycle(t *testing.T) {
	db := createDB(t)
	tracker := tracking.NewSQLTracker(db)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, "heart", "logistic_regression", map[string]string{"dataset_rows": "41"})
	require.NoError(t, err)

	require.NoError(t, tracker.LogParam(ctx, runID, "learning_rate", "0.1"))
	require.NoError(t, tracker.LogMetric(ctx, runID, "roc_auc", 0.91))
	require.NoError(t, tracker.LogArtifact(ctx, runID, "models/model.json"))
	require.NoError(t, tracker.EndRun(ctx, runID, tracking.RunFinished))

	run, err := tracking.GetRun(ctx, db, uuid.MustParse(runID))
	require.NoError(t, err)

	assert.Equal(t, "heart", run.Experiment)
	assert.Equal(t, "logistic_regression", run.ModelType)
	assert.Equal(t, tracking.RunFinished, run.Status)
	assert.True(t, run.EndTime.Valid)

	require.Len(t, run.Params, 1)
	assert.Equal(t, "learning_rate", run.Params[0].Key)
	require.Len(t, run.Metrics, 1)
	assert.Equal(t, 0.91, run.Metrics[0].Value)
	require.Len(t, run.Artifacts, 1)

	var tags map[string]string
	require.NoError(t, json.Unmarshal(run.Tags, &tags))
	assert.Equal(t, "41", tags["dataset_rows"])
}

func TestEndRunUnknownId(t *testing.T) {
	tracker := tracking.NewSQLTracker(createDB(t))
	err := tracker.EndRun(context.Background(), uuid.NewString(), tracking.RunFailed)
	assert.Error(t, err)
}

func TestListAndLatestRuns(t *testing.T) {
	db := createDB(t)
	tracker := tracking.NewSQLTracker(db)
	ctx := context.Background()

	first, err := tracker.StartRun(ctx, "heart", "logistic_regression", nil)
	require.NoError(t, err)
	second, err := tracker.StartRun(ctx, "heart", "random_forest", nil)
	require.NoError(t, err)
	third, err := tracker.StartRun(ctx, "heart", "logistic_regression", nil)
	require.NoError(t, err)
	_ = first

	runs, err := tracking.ListRuns(ctx, db, tracking.RunFilter{Experiment: "heart"})
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	runs, err = tracking.ListRuns(ctx, db, tracking.RunFilter{ModelType: "random_forest"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, second, runs[0].Id.String())

	runs, err = tracking.ListRuns(ctx, db, tracking.RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := tracking.LatestRun(ctx, db, "heart", "logistic_regression")
	require.NoError(t, err)
	assert.Equal(t, third, latest.Id.String())

	_, err = tracking.LatestRun(ctx, db, "heart", "gradient_boosting")
	assert.ErrorIs(t, err, tracking.ErrRunNotFound)
}

func TestGetRunNotFound(t *testing.T) {
	_, err := tracking.GetRun(context.Background(), createDB(t), uuid.New())
	assert.ErrorIs(t, err, tracking.ErrRunNotFound)
}

// writeJSON mirrors the MLflow server, which always answers with a JSON
// content type; the resty client only decodes bodies that carry it.
func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestMLflowTracker(t *testing.T) {
	var logged struct {
		params  int
		metrics int
		tags    map[string]string
		updated bool
	}
	logged.tags = make(map[string]string)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/experiments/get-by-name":
			http.Error(w, `{"error_code":"RESOURCE_DOES_NOT_EXIST"}`, http.StatusNotFound)
		case "/api/2.0/mlflow/experiments/create":
			writeJSON(t, w, map[string]string{"experiment_id": "7"})
		case "/api/2.0/mlflow/runs/create":
			writeJSON(t, w, map[string]any{
				"run": map[string]any{"info": map[string]any{"run_id": "abc123"}},
			})
		case "/api/2.0/mlflow/runs/log-parameter":
			logged.params++
			writeJSON(t, w, map[string]any{})
		case "/api/2.0/mlflow/runs/log-metric":
			logged.metrics++
			writeJSON(t, w, map[string]any{})
		case "/api/2.0/mlflow/runs/set-tag":
			var tag struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tag))
			logged.tags[tag.Key] = tag.Value
			writeJSON(t, w, map[string]any{})
		case "/api/2.0/mlflow/runs/update":
			logged.updated = true
			writeJSON(t, w, map[string]any{})
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		}
	}))
	defer server.Close()

	tracker := tracking.NewMLflowTracker(server.URL)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, "heart", "random_forest", map[string]string{"seed": "42"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", runID)

	require.NoError(t, tracker.LogParam(ctx, runID, "num_trees", "100"))
	require.NoError(t, tracker.LogMetric(ctx, runID, "roc_auc", 0.88))
	require.NoError(t, tracker.LogArtifact(ctx, runID, "models/model.json"))
	require.NoError(t, tracker.LogArtifact(ctx, runID, "models/preprocessor.json"))
	require.NoError(t, tracker.EndRun(ctx, runID, tracking.RunFinished))

	assert.Equal(t, 1, logged.params)
	assert.Equal(t, 1, logged.metrics)
	assert.True(t, logged.updated)

	// Each artifact keeps its own tag; a second log call must not clobber
	// the first.
	assert.Equal(t, "models/model.json", logged.tags["artifact_location.model.json"])
	assert.Equal(t, "models/preprocessor.json", logged.tags["artifact_location.preprocessor.json"])
}

func TestMLflowTrackerRejectsMissingRunId(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/2.0/mlflow/experiments/get-by-name":
			writeJSON(t, w, map[string]any{
				"experiment": map[string]any{"experiment_id": "7"},
			})
		case "/api/2.0/mlflow/runs/create":
			writeJSON(t, w, map[string]any{})
		default:
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
		}
	}))
	defer server.Close()

	tracker := tracking.NewMLflowTracker(server.URL)
	runID, err := tracker.StartRun(context.Background(), "heart", "random_forest", nil)
	assert.ErrorContains(t, err, "no run id")
	assert.Empty(t, runID)
}

func TestMLflowTrackerSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error_code":"INTERNAL_ERROR","message":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	tracker := tracking.NewMLflowTracker(server.URL)
	_, err := tracker.StartRun(context.Background(), "heart", "random_forest", nil)
	assert.Error(t, err)
}
