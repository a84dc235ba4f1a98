// Package metrics provides Prometheus metrics for the rental price
// pipelines: dataset loading, model training and inference. Metrics are
// labelled by pipeline variant so the whole-property and shared-room
// models can be monitored independently.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the estimator.
type Metrics struct {
	// Dataset metrics
	RowsLoaded   *prometheus.CounterVec // Raw rows read from training files
	RowsRetained *prometheus.CounterVec // Rows surviving cleaning

	// Training metrics
	TrainingDuration *prometheus.HistogramVec // Seconds spent fitting a model
	ModelAge         *prometheus.GaugeVec     // Age of the active model artifact in seconds
	ModelR2          *prometheus.GaugeVec     // Holdout R² of the active model

	// Inference metrics
	Predictions        *prometheus.CounterVec   // Predictions served
	PredictionFailures *prometheus.CounterVec   // Failed prediction attempts
	PredictionLatency  *prometheus.HistogramVec // Prediction latency in seconds
	EncodeFailures     *prometheus.CounterVec   // Query encoding rejections
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry, which keeps tests
// isolated from the global state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	variant := []string{"variant"}

	return &Metrics{
		RowsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rent_dataset_rows_loaded_total",
			Help: "Raw listing rows read from training data files",
		}, variant),
		RowsRetained: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rent_dataset_rows_retained_total",
			Help: "Listing rows remaining after cleaning",
		}, variant),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rent_model_training_duration_seconds",
			Help:    "Time spent fitting the ensemble",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, variant),
		ModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rent_model_age_seconds",
			Help: "Age of the active model artifact",
		}, variant),
		ModelR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rent_model_r2",
			Help: "Holdout R2 score of the active model",
		}, variant),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rent_predictions_total",
			Help: "Price predictions served",
		}, variant),
		PredictionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rent_prediction_failures_total",
			Help: "Price predictions that failed",
		}, variant),
		PredictionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rent_prediction_latency_seconds",
			Help:    "Latency of encode+predict per request",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, variant),
		EncodeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rent_encode_failures_total",
			Help: "Query encodings rejected as invalid",
		}, variant),
	}
}
