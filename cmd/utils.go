package cmd

import (
	"context"
	"flag"
	"log"

	"heart-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// ArtifactStoreConfig holds the shared artifact store settings of the api and
// train commands. A bucket selects S3; otherwise a local directory can serve
// as the shared store. With neither set, artifacts stay where the trainer
// wrote them.
type ArtifactStoreConfig struct {
	S3Bucket          string `env:"ARTIFACT_S3_BUCKET"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`

	LocalDir string `env:"ARTIFACT_STORE_DIR"`
}

// NewArtifactStore returns nil when no store is configured.
func NewArtifactStore(ctx context.Context, cfg ArtifactStoreConfig) (storage.ObjectStore, error) {
	if cfg.S3Bucket != "" {
		return storage.NewS3ObjectStore(ctx, storage.S3ClientConfig{
			EndpointURL:     cfg.S3EndpointURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
		})
	}
	if cfg.LocalDir != "" {
		return storage.NewLocalObjectStore(cfg.LocalDir)
	}
	return nil, nil
}
