package prometheus

import (
	"math"
	"time"
)

// ModelMetrics holds the metrics emitted around Bayesian model lifecycles.
type ModelMetrics struct {
	// Training
	TrainingsTotal   CounterVec
	TrainingExamples HistogramVec
	BuildDuration    HistogramVec

	// Validation
	ValidationsTotal   CounterVec
	ValidationDuration HistogramVec
	ValidationAUC      GaugeVec

	// Prediction
	PredictionsTotal CounterVec

	// Infrastructure
	StoreOperationsTotal CounterVec
	CacheHitsTotal       CounterVec
	CacheMissesTotal     CounterVec
	EventsPublishedTotal CounterVec
	ErrorsTotal          CounterVec
}

var (
	DefaultDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultExampleBuckets  = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000}
)

// NewModelMetrics registers every model metric against the collector.
func NewModelMetrics(collector MetricsCollector) *ModelMetrics {
	m := &ModelMetrics{}

	m.TrainingsTotal = collector.RegisterCounter("model_trainings_total", "Models trained", "kind", "status")
	m.TrainingExamples = collector.RegisterHistogram("model_training_examples", "Training examples per model", DefaultExampleBuckets, "kind")
	m.BuildDuration = collector.RegisterHistogram("model_build_duration_seconds", "Model build duration", DefaultDurationBuckets, "kind")

	m.ValidationsTotal = collector.RegisterCounter("model_validations_total", "Cross-validation runs", "type", "status")
	m.ValidationDuration = collector.RegisterHistogram("model_validation_duration_seconds", "Cross-validation duration", DefaultDurationBuckets, "type")
	m.ValidationAUC = collector.RegisterGauge("model_validation_auc", "ROC AUC of the most recent validation", "kind", "type")

	m.PredictionsTotal = collector.RegisterCounter("model_predictions_total", "Molecules scored", "kind")

	m.StoreOperationsTotal = collector.RegisterCounter("model_store_operations_total", "Model store operations", "operation", "status")
	m.CacheHitsTotal = collector.RegisterCounter("model_cache_hits_total", "Model cache hits")
	m.CacheMissesTotal = collector.RegisterCounter("model_cache_misses_total", "Model cache misses")
	m.EventsPublishedTotal = collector.RegisterCounter("model_events_published_total", "Model events published", "type", "status")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")

	return m
}

// NewNopModelMetrics returns metrics that discard every observation.
func NewNopModelMetrics() *ModelMetrics {
	return &ModelMetrics{
		TrainingsTotal:       noopCounterVec{},
		TrainingExamples:     noopHistogramVec{},
		BuildDuration:        noopHistogramVec{},
		ValidationsTotal:     noopCounterVec{},
		ValidationDuration:   noopHistogramVec{},
		ValidationAUC:        noopGaugeVec{},
		PredictionsTotal:     noopCounterVec{},
		StoreOperationsTotal: noopCounterVec{},
		CacheHitsTotal:       noopCounterVec{},
		CacheMissesTotal:     noopCounterVec{},
		EventsPublishedTotal: noopCounterVec{},
		ErrorsTotal:          noopCounterVec{},
	}
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *ModelMetrics) RecordTraining(kind string, examples int, duration time.Duration, err error) {
	m.TrainingsTotal.WithLabelValues(kind, status(err)).Inc()
	if err != nil {
		return
	}
	m.TrainingExamples.WithLabelValues(kind).Observe(float64(examples))
	m.BuildDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordValidation leaves the AUC gauge untouched when the AUC is undefined.
func (m *ModelMetrics) RecordValidation(kind, validation string, duration time.Duration, auc float64, err error) {
	m.ValidationsTotal.WithLabelValues(validation, status(err)).Inc()
	if err != nil {
		return
	}
	m.ValidationDuration.WithLabelValues(validation).Observe(duration.Seconds())
	if !math.IsNaN(auc) {
		m.ValidationAUC.WithLabelValues(kind, validation).Set(auc)
	}
}

func (m *ModelMetrics) RecordPredictions(kind string, n int) {
	m.PredictionsTotal.WithLabelValues(kind).Add(float64(n))
}

func (m *ModelMetrics) RecordStoreOperation(operation string, err error) {
	m.StoreOperationsTotal.WithLabelValues(operation, status(err)).Inc()
}

func (m *ModelMetrics) RecordCacheAccess(hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues().Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues().Inc()
	}
}

func (m *ModelMetrics) RecordEvent(eventType string, err error) {
	m.EventsPublishedTotal.WithLabelValues(eventType, status(err)).Inc()
}

func (m *ModelMetrics) RecordError(component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
