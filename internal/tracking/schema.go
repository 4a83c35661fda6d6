package tracking

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run lifecycle states.
const (
	RunRunning  string = "RUNNING"
	RunFinished string = "FINISHED"
	RunFailed   string = "FAILED"
)

// Run is one training run: a model type fitted once with a fixed parameter
// set, its metrics, and the artifacts it produced.
type Run struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Experiment string `gorm:"index;not null"`
	ModelType  string `gorm:"size:40;index"`
	Status     string `gorm:"size:20;not null"`

	StartTime time.Time
	EndTime   sql.NullTime

	Tags datatypes.JSON

	Params    []RunParam    `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	Metrics   []RunMetric   `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	Artifacts []RunArtifact `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type RunParam struct {
	RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key   string    `gorm:"primaryKey"`
	Value string
}

type RunMetric struct {
	RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key   string    `gorm:"primaryKey"`
	Value float64
}

type RunArtifact struct {
	RunId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Path  string    `gorm:"primaryKey"`
}
