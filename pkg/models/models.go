package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PredictRequest is one patient observation. All 13 fields are required;
// pointers distinguish an absent field from a zero value.
type PredictRequest struct {
	Age      *float64 `json:"age"`
	Sex      *float64 `json:"sex"`
	Cp       *float64 `json:"cp"`
	Trestbps *float64 `json:"trestbps"`
	Chol     *float64 `json:"chol"`
	Fbs      *float64 `json:"fbs"`
	Restecg  *float64 `json:"restecg"`
	Thalach  *float64 `json:"thalach"`
	Exang    *float64 `json:"exang"`
	Oldpeak  *float64 `json:"oldpeak"`
	Slope    *float64 `json:"slope"`
	Ca       *float64 `json:"ca"`
	Thal     *float64 `json:"thal"`
}

func (r *PredictRequest) fields() map[string]*float64 {
	return map[string]*float64{
		"age":      r.Age,
		"sex":      r.Sex,
		"cp":       r.Cp,
		"trestbps": r.Trestbps,
		"chol":     r.Chol,
		"fbs":      r.Fbs,
		"restecg":  r.Restecg,
		"thalach":  r.Thalach,
		"exang":    r.Exang,
		"oldpeak":  r.Oldpeak,
		"slope":    r.Slope,
		"ca":       r.Ca,
		"thal":     r.Thal,
	}
}

// Validate reports every missing field at once so clients can fix the
// payload in a single round trip.
func (r *PredictRequest) Validate() error {
	var missing []string
	for name, value := range r.fields() {
		if value == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Record flattens the request into the column-keyed form the preprocessing
// pipeline consumes. Callers must Validate first.
func (r *PredictRequest) Record() map[string]float64 {
	record := make(map[string]float64, 13)
	for name, value := range r.fields() {
		if value != nil {
			record[name] = *value
		}
	}
	return record
}

type PredictResponse struct {
	Prediction      string  `json:"prediction"`
	PredictionLabel int     `json:"prediction_label"`
	Confidence      float64 `json:"confidence"`
}

// CategoryForLabel maps the raw binary label to the human-readable category.
func CategoryForLabel(label int) string {
	if label == 1 {
		return "Heart Disease"
	}
	return "No Heart Disease"
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type WelcomeResponse struct {
	Message string `json:"message"`
}

// RunQuery filters GET /runs; decoded from query params.
type RunQuery struct {
	Experiment string `schema:"experiment"`
	ModelType  string `schema:"model_type"`
	Limit      int    `schema:"limit"`
}

type Run struct {
	Id         uuid.UUID          `json:"id"`
	Experiment string             `json:"experiment"`
	ModelType  string             `json:"model_type"`
	Status     string             `json:"status"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty"`
	Params     map[string]string  `json:"params,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	Artifacts  []string           `json:"artifacts,omitempty"`
}
