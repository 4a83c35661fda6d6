// Package monitoring defines the Prometheus instrumentation of the
// prediction service. Collectors hang off an injected registry rather than
// the package-global default so tests get isolated metric state.
package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error categories counted on the prediction path.
const (
	ErrorModelNotLoaded = "model_not_loaded"
	ErrorPreprocessing  = "preprocessing_error"
	ErrorPrediction     = "prediction_error"
)

type Metrics struct {
	Predictions    *prometheus.CounterVec
	Confidence     prometheus.Histogram
	Errors         *prometheus.CounterVec
	ActiveRequests prometheus.Gauge
	ModelLoaded    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heart_disease_predictions_total",
			Help: "Total number of predictions made",
		}, []string{"prediction_label"}),
		Confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "heart_disease_prediction_confidence",
			Help:    "Confidence scores of predictions",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0},
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heart_disease_prediction_errors_total",
			Help: "Total number of prediction errors",
		}, []string{"error_type"}),
		ActiveRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heart_disease_active_requests",
			Help: "Number of active prediction requests",
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heart_disease_model_loaded",
			Help: "Model load status (1 for loaded, 0 for not loaded)",
		}),
	}

	// Materialize every label value up front so scrapes report zeros
	// instead of absent series.
	for _, label := range []string{"0", "1"} {
		m.Predictions.WithLabelValues(label)
	}
	for _, errType := range []string{ErrorModelNotLoaded, ErrorPreprocessing, ErrorPrediction} {
		m.Errors.WithLabelValues(errType)
	}

	return m
}

// ObservePrediction records one successful prediction outcome.
func (m *Metrics) ObservePrediction(label int, confidence float64) {
	m.Predictions.WithLabelValues(strconv.Itoa(label)).Inc()
	m.Confidence.Observe(confidence)
}

// CountError increments the counter for one error category.
func (m *Metrics) CountError(errType string) {
	m.Errors.WithLabelValues(errType).Inc()
}

// Handler serves the registry in the Prometheus text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
