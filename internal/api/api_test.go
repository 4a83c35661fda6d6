package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	backend "heart-backend/internal/api"
	"heart-backend/internal/dataset"
	"heart-backend/internal/monitoring"
	"heart-backend/internal/tracking"
	"heart-backend/internal/training"
	"heart-backend/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, tracking.GetMigrator(db).Migrate())
	return db
}

type testEnv struct {
	router  chi.Router
	metrics *monitoring.Metrics
	db      *gorm.DB
	result  *training.Result
}

// newEnv trains on the sample dataset and wires a service over the produced
// artifacts. With loaded=false the artifact directory is left empty, putting
// the service in its degraded state.
func newEnv(t *testing.T, loaded bool) *testEnv {
	t.Helper()

	db := createDB(t)
	artifactDir := t.TempDir()

	var result *training.Result
	if loaded {
		frame, err := dataset.Load(filepath.Join("..", "dataset", "testdata", "heart_sample.csv"))
		require.NoError(t, err)

		result, err = training.Run(context.Background(), frame, tracking.NewSQLTracker(db), training.Config{
			Experiment:   "heart",
			TestFraction: 0.2,
			Seed:         42,
			ArtifactDir:  artifactDir,
		})
		require.NoError(t, err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	service := backend.NewPredictionService(db, metrics)
	if err := service.LoadArtifacts(artifactDir); err != nil && loaded {
		t.Fatalf("expected artifacts to load: %v", err)
	}

	router := chi.NewRouter()
	service.AddRoutes(router)

	return &testEnv{router: router, metrics: metrics, db: db, result: result}
}

// fixturePayload is the regression record from the original dataset.
func fixturePayload() map[string]any {
	return map[string]any{
		"age": 63, "sex": 1, "cp": 3, "trestbps": 145, "chol": 233,
		"fbs": 1, "restecg": 0, "thalach": 150, "exang": 0,
		"oldpeak": 2.3, "slope": 0, "ca": 0, "thal": 1,
	}
}

func postPredict(t *testing.T, router chi.Router, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPredictValidRecord(t *testing.T) {
	env := newEnv(t, true)

	rec := postPredict(t, env.router, fixturePayload())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response models.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Contains(t, []int{0, 1}, response.PredictionLabel)
	assert.GreaterOrEqual(t, response.Confidence, 0.0)
	assert.LessOrEqual(t, response.Confidence, 1.0)
	assert.Equal(t, models.CategoryForLabel(response.PredictionLabel), response.Prediction)

	label := fmt.Sprintf("%d", response.PredictionLabel)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Predictions.WithLabelValues(label)))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ActiveRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ModelLoaded))
}

func TestPredictDeterministic(t *testing.T) {
	env := newEnv(t, true)

	first := postPredict(t, env.router, fixturePayload())
	second := postPredict(t, env.router, fixturePayload())

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPredictModelNotLoaded(t *testing.T) {
	env := newEnv(t, false)

	for i := 1; i <= 2; i++ {
		rec := postPredict(t, env.router, fixturePayload())
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, float64(i), testutil.ToFloat64(env.metrics.Errors.WithLabelValues(monitoring.ErrorModelNotLoaded)))
	}

	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ModelLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ActiveRequests))

	// Health reports the degraded state instead of failing.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.ModelLoaded)
}

func TestPredictMalformedPayload(t *testing.T) {
	env := newEnv(t, true)

	missing := fixturePayload()
	delete(missing, "thal")
	rec := postPredict(t, env.router, missing)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "thal")

	wrongType := fixturePayload()
	wrongType["age"] = "sixty-three"
	rec = postPredict(t, env.router, wrongType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknownField := fixturePayload()
	unknownField["bmi"] = 27.4
	rec = postPredict(t, env.router, unknownField)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Rejected requests never touch the prediction path metrics.
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.Predictions.WithLabelValues("0")))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.Predictions.WithLabelValues("1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ActiveRequests))
	for _, errType := range []string{monitoring.ErrorModelNotLoaded, monitoring.ErrorPreprocessing, monitoring.ErrorPrediction} {
		assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.Errors.WithLabelValues(errType)), errType)
	}
}

func TestPredictUnknownCategory(t *testing.T) {
	env := newEnv(t, true)

	payload := fixturePayload()
	payload["cp"] = 9
	rec := postPredict(t, env.router, payload)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Errors.WithLabelValues(monitoring.ErrorPreprocessing)))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.ActiveRequests))
}

func TestHealthWhenLoaded(t *testing.T) {
	env := newEnv(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.ModelLoaded)
}

func TestWelcome(t *testing.T) {
	env := newEnv(t, true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/predict")
}

func TestListRuns(t *testing.T) {
	env := newEnv(t, true)

	req := httptest.NewRequest(http.MethodGet, "/runs?experiment=heart", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	req = httptest.NewRequest(http.MethodGet, "/runs?model_type="+env.result.Best.ModelType, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	runs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, env.result.Best.RunID, runs[0].Id.String())
}

func TestGetRun(t *testing.T) {
	env := newEnv(t, true)

	req := httptest.NewRequest(http.MethodGet, "/runs/"+env.result.Best.RunID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var run models.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, env.result.Best.ModelType, run.ModelType)
	assert.Equal(t, tracking.RunFinished, run.Status)
	assert.Contains(t, run.Metrics, "roc_auc")
	assert.Len(t, run.Artifacts, 2)

	req = httptest.NewRequest(http.MethodGet, "/runs/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
