// Package observability exposes pipeline metrics through a Prometheus
// registry and an optional HTTP endpoint.
package observability

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roofsense/roofsense-go/internal/errors"
	"github.com/roofsense/roofsense-go/internal/logging"
)

// Metrics collects counters and timings for all pipeline stages. One Metrics
// value is created per process; the run ID labels every series so scrapes
// from repeated runs stay distinguishable.
type Metrics struct {
	RunID    string
	registry *prometheus.Registry

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	images        *prometheus.CounterVec
	chipsExported prometheus.Counter
	featuresSaved prometheus.Counter
	epochLoss     *prometheus.GaugeVec
}

// NewMetrics builds a registry with all pipeline collectors registered.
func NewMetrics() (*Metrics, error) {
	runID := uuid.New().String()
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RunID:    runID,
		registry: registry,
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roofsense_stage_runs_total",
			Help:        "Pipeline stage executions by outcome",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "roofsense_stage_duration_seconds",
			Help:        "Pipeline stage wall time",
			ConstLabels: prometheus.Labels{"run_id": runID},
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"stage"}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roofsense_images_total",
			Help:        "Images handled per stage by outcome",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"stage", "outcome"}),
		chipsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "roofsense_chips_exported_total",
			Help:        "Training chips appended to datasets",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
		featuresSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "roofsense_features_saved_total",
			Help:        "Predicted damage polygons written",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}),
		epochLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "roofsense_training_loss",
			Help:        "Latest training and validation loss per model",
			ConstLabels: prometheus.Labels{"run_id": runID},
		}, []string{"model", "kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.stageRuns, m.stageDuration, m.images,
		m.chipsExported, m.featuresSaved, m.epochLoss,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, errors.New(err).
				Component("observability").
				Category(errors.CategoryGeneric).
				Context("operation", "register-collector").
				Build()
		}
	}
	return m, nil
}

// ObserveStage records one stage execution from its start time and outcome.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageRuns.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CountImages adds processed and skipped image counts for a stage.
func (m *Metrics) CountImages(stage string, processed, skipped int) {
	m.images.WithLabelValues(stage, "processed").Add(float64(processed))
	m.images.WithLabelValues(stage, "skipped").Add(float64(skipped))
}

// CountChips adds exported chips.
func (m *Metrics) CountChips(n int) { m.chipsExported.Add(float64(n)) }

// CountFeatures adds saved prediction polygons.
func (m *Metrics) CountFeatures(n int) { m.featuresSaved.Add(float64(n)) }

// SetLoss publishes the latest loss values for a model.
func (m *Metrics) SetLoss(model string, trainLoss, validationLoss float64) {
	m.epochLoss.WithLabelValues(model, "train").Set(trainLoss)
	m.epochLoss.WithLabelValues(model, "validation").Set(validationLoss)
}

// Serve exposes the registry on /metrics at the listen address. It blocks,
// so callers run it in a goroutine alongside the pipeline.
func (m *Metrics) Serve(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	logging.Info("metrics endpoint listening", "address", listen, "run_id", m.RunID)
	server := &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
