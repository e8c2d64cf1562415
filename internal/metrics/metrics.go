// Package metrics exports the outcome of a pipeline run as a Prometheus
// textfile, for collection by node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weatherflow"

// StageSample is one stage as recorded for export.
type StageSample struct {
	Name     string
	Outcome  string
	Attempts int
	Elapsed  time.Duration
}

// ArtifactSample is one retrieved artifact.
type ArtifactSample struct {
	Name    string
	Rows    int
	Bytes   int64
	Present bool
}

// RunSample is a finished run.
type RunSample struct {
	Outcome   string
	Started   time.Time
	Finished  time.Time
	Stages    []StageSample
	Artifacts []ArtifactSample
}

// Outcomes lists every overall run outcome so each gets an explicit series.
var Outcomes = []string{"success", "partial_failure", "fatal"}

// Collector holds the gauges for a single run export.
type Collector struct {
	registry      *prometheus.Registry
	runOutcome    *prometheus.GaugeVec
	runDuration   prometheus.Gauge
	runFinished   prometheus.Gauge
	stageDuration *prometheus.GaugeVec
	stageAttempts *prometheus.GaugeVec
	stageSuccess  *prometheus.GaugeVec
	artifactRows  *prometheus.GaugeVec
	artifactBytes *prometheus.GaugeVec
}

// NewCollector registers the run gauges on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		runOutcome: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_outcome",
			Help:      "1 for the outcome of the most recent run, 0 otherwise",
		}, []string{"outcome"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the most recent run",
		}),
		runFinished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the most recent run finished",
		}),
		stageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Elapsed time per stage in the most recent run",
		}, []string{"stage"}),
		stageAttempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_attempts",
			Help:      "Attempts consumed per stage in the most recent run",
		}, []string{"stage"}),
		stageSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_success",
			Help:      "1 when the stage succeeded (possibly after retries)",
		}, []string{"stage", "outcome"}),
		artifactRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_rows",
			Help:      "Data rows in each retrieved artifact, excluding the header",
		}, []string{"artifact"}),
		artifactBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of each retrieved artifact",
		}, []string{"artifact"}),
	}
}

// Observe records a finished run.
func (c *Collector) Observe(run RunSample) {
	for _, outcome := range Outcomes {
		value := 0.0
		if outcome == run.Outcome {
			value = 1
		}
		c.runOutcome.WithLabelValues(outcome).Set(value)
	}
	c.runDuration.Set(run.Finished.Sub(run.Started).Seconds())
	c.runFinished.Set(float64(run.Finished.Unix()))

	for _, stage := range run.Stages {
		c.stageDuration.WithLabelValues(stage.Name).Set(stage.Elapsed.Seconds())
		c.stageAttempts.WithLabelValues(stage.Name).Set(float64(stage.Attempts))
		success := 0.0
		if stage.Outcome == "success" || stage.Outcome == "retried" {
			success = 1
		}
		c.stageSuccess.WithLabelValues(stage.Name, stage.Outcome).Set(success)
	}
	for _, artifact := range run.Artifacts {
		if !artifact.Present {
			continue
		}
		c.artifactRows.WithLabelValues(artifact.Name).Set(float64(artifact.Rows))
		c.artifactBytes.WithLabelValues(artifact.Name).Set(float64(artifact.Bytes))
	}
}

// WriteTextfile writes the registry to path atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Export observes run and writes it to path in one step.
func Export(path string, run RunSample) error {
	c := NewCollector()
	c.Observe(run)
	return c.WriteTextfile(path)
}
