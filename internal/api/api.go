package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"heart-backend/internal/model"
	"heart-backend/internal/monitoring"
	"heart-backend/internal/preprocess"
	"heart-backend/internal/tracking"
	"heart-backend/internal/training"
	"heart-backend/pkg/models"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// PredictionService scores feature records against the persisted model and
// preprocessor. Both artifacts are loaded once at startup and treated as
// read-only; when loading failed the service keeps running degraded and every
// prediction fails with a distinguishable error.
type PredictionService struct {
	db      *gorm.DB
	metrics *monitoring.Metrics

	pipeline   *preprocess.Pipeline
	classifier model.Classifier
}

func NewPredictionService(db *gorm.DB, metrics *monitoring.Metrics) *PredictionService {
	return &PredictionService{db: db, metrics: metrics}
}

// LoadArtifacts reads the preprocessor and model from the artifact directory.
// On failure the service stays usable but degraded; the caller decides
// whether to log and continue.
func (s *PredictionService) LoadArtifacts(dir string) error {
	s.metrics.ModelLoaded.Set(0)

	pipeline, err := preprocess.Load(filepath.Join(dir, training.PreprocessorFile))
	if err != nil {
		return fmt.Errorf("failed to load preprocessor: %w", err)
	}

	classifier, err := model.Load(filepath.Join(dir, training.ModelFile))
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	s.pipeline = pipeline
	s.classifier = classifier
	s.metrics.ModelLoaded.Set(1)
	slog.Info("model and preprocessor loaded", "dir", dir, "model_type", classifier.Type())
	return nil
}

// Loaded reports whether both artifacts are available.
func (s *PredictionService) Loaded() bool {
	return s.pipeline != nil && s.classifier != nil
}

func (s *PredictionService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.Welcome))
	r.Get("/health", RestHandler(s.Health))
	r.Post("/predict", RestHandler(s.Predict))
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
	})
}

func (s *PredictionService) Welcome(r *http.Request) (any, error) {
	return models.WelcomeResponse{
		Message: "Welcome to the Heart Disease Prediction API. Use the /predict endpoint to make predictions.",
	}, nil
}

func (s *PredictionService) Health(r *http.Request) (any, error) {
	status := "ok"
	if !s.Loaded() {
		status = "degraded"
	}
	return models.HealthResponse{Status: status, ModelLoaded: s.Loaded()}, nil
}

func (s *PredictionService) Predict(r *http.Request) (any, error) {
	req, err := ParseRequest[models.PredictRequest](r)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, CodedError(http.StatusUnprocessableEntity, err)
	}

	if !s.Loaded() {
		slog.Error("prediction requested but model artifacts are not loaded")
		s.metrics.CountError(monitoring.ErrorModelNotLoaded)
		return nil, CodedErrorf(http.StatusServiceUnavailable, "model or preprocessor not loaded")
	}

	s.metrics.ActiveRequests.Inc()
	defer s.metrics.ActiveRequests.Dec()

	features, err := s.pipeline.Transform(req.Record())
	if err != nil {
		slog.Error("error during data preprocessing", "error", err)
		s.metrics.CountError(monitoring.ErrorPreprocessing)
		if errors.Is(err, preprocess.ErrUnknownCategory) || errors.Is(err, preprocess.ErrMissingColumn) {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "error during data preprocessing: %v", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "error during data preprocessing: %v", err)
	}

	label, confidence, err := model.Predict(s.classifier, features)
	if err != nil {
		slog.Error("error during prediction", "error", err)
		s.metrics.CountError(monitoring.ErrorPrediction)
		return nil, CodedErrorf(http.StatusInternalServerError, "error during prediction: %v", err)
	}

	s.metrics.ObservePrediction(label, confidence)

	response := models.PredictResponse{
		Prediction:      models.CategoryForLabel(label),
		PredictionLabel: label,
		Confidence:      confidence,
	}
	slog.Info("prediction successful", "label", label, "confidence", confidence)
	return response, nil
}

func (s *PredictionService) ListRuns(r *http.Request) (any, error) {
	query, err := ParseRequestQueryParams[models.RunQuery](r)
	if err != nil {
		return nil, err
	}

	runs, err := tracking.ListRuns(r.Context(), s.db, tracking.RunFilter{
		Experiment: query.Experiment,
		ModelType:  query.ModelType,
		Limit:      query.Limit,
	})
	if err != nil {
		slog.Error("error listing runs", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving runs")
	}

	response := make([]models.Run, len(runs))
	for i, run := range runs {
		response[i] = convertRun(run)
	}
	return response, nil
}

func (s *PredictionService) GetRun(r *http.Request) (any, error) {
	runID, err := URLParamUUID(r, "run_id")
	if err != nil {
		return nil, err
	}

	run, err := tracking.GetRun(r.Context(), s.db, runID)
	if err != nil {
		if errors.Is(err, tracking.ErrRunNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "run not found")
		}
		slog.Error("error getting run", "run_id", runID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
	}

	return convertRun(*run), nil
}
