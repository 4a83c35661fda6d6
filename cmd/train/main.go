package main

import (
	"context"
	"log"
	"log/slog"

	"heart-backend/cmd"
	"heart-backend/internal/dataset"
	"heart-backend/internal/tracking"
	"heart-backend/internal/training"

	"github.com/caarlos0/env/v11"
)

type TrainConfig struct {
	DataPath            string  `env:"DATA_PATH,notEmpty" envDefault:"data/heart.csv"`
	ArtifactDir         string  `env:"ARTIFACT_DIR" envDefault:"models"`
	ArtifactS3Prefix    string  `env:"ARTIFACT_S3_PREFIX" envDefault:"heart-disease"`
	TrackingDatabaseURL string  `env:"TRACKING_DATABASE_URL" envDefault:"tracking.db"`
	MLflowTrackingURI   string  `env:"MLFLOW_TRACKING_URI"`
	ExperimentName      string  `env:"EXPERIMENT_NAME" envDefault:"Heart Disease Prediction"`
	TestFraction        float64 `env:"TEST_FRACTION" envDefault:"0.2"`
	Seed                int64   `env:"SEED" envDefault:"42"`

	Store cmd.ArtifactStoreConfig
}

// newTracker prefers a remote MLflow server when one is configured and
// otherwise records runs in the local tracking database.
func newTracker(cfg TrainConfig) (tracking.Tracker, error) {
	if cfg.MLflowTrackingURI != "" {
		slog.Info("tracking runs with MLflow", "uri", cfg.MLflowTrackingURI)
		return tracking.NewMLflowTracker(cfg.MLflowTrackingURI), nil
	}

	db, err := tracking.OpenDatabase(cfg.TrackingDatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := tracking.GetMigrator(db).Migrate(); err != nil {
		return nil, err
	}
	return tracking.NewSQLTracker(db), nil
}

func main() {
	log.Println("Starting training run...")

	cmd.LoadEnvFile()

	var cfg TrainConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	ctx := context.Background()

	frame, err := dataset.Load(cfg.DataPath)
	if err != nil {
		log.Fatalf("Failed to load dataset from %s: %v", cfg.DataPath, err)
	}
	slog.Info("loaded dataset", "path", cfg.DataPath, "rows", frame.Len())

	tracker, err := newTracker(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize experiment tracker: %v", err)
	}

	result, err := training.Run(ctx, frame, tracker, training.Config{
		Experiment:   cfg.ExperimentName,
		TestFraction: cfg.TestFraction,
		Seed:         cfg.Seed,
		ArtifactDir:  cfg.ArtifactDir,
	})
	if err != nil {
		log.Fatalf("Training failed: %v", err)
	}

	slog.Info("artifacts written",
		"model_path", result.ModelPath,
		"preprocessor_path", result.PreprocessorPath,
	)

	store, err := cmd.NewArtifactStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to create artifact store: %v", err)
	}
	if store != nil {
		if err := store.UploadDir(ctx, cfg.ArtifactS3Prefix, cfg.ArtifactDir); err != nil {
			log.Fatalf("Failed to upload artifacts: %v", err)
		}
		slog.Info("uploaded artifacts to object store", "prefix", cfg.ArtifactS3Prefix)
	}

	log.Println("Training complete.")
}
