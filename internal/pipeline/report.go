package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"weatherflow/internal/config"
	"weatherflow/internal/fileutil"
	"weatherflow/internal/logging"
	"weatherflow/internal/metrics"
	"weatherflow/internal/notifications"
	"weatherflow/internal/runstore"
	"weatherflow/internal/services"
)

// Reporter persists a finished run: a JSON summary next to the artifacts,
// an optional Prometheus textfile, and a row in the run history store.
type Reporter struct {
	summaryPath string
	metricsPath string
	openStore   func() (*runstore.Store, error)
	logger      *slog.Logger
}

// NewReporter builds a reporter from configuration.
func NewReporter(cfg *config.Config, logger *slog.Logger) *Reporter {
	return &Reporter{
		summaryPath: filepath.Join(cfg.Paths.OutputDir, SummaryFileName),
		metricsPath: cfg.Metrics.TextfilePath,
		openStore:   func() (*runstore.Store, error) { return runstore.Open(cfg) },
		logger:      logging.NewComponentLogger(logger, "report"),
	}
}

// report runs the final stage. It is recorded before the sinks are written
// so every persisted copy of the run includes all seven results; a sink
// failure rewrites that last result to Failed before the store is written.
func (o *Orchestrator) report(ctx context.Context, run *Run) {
	// the report must land even when the run was cancelled
	ctx = services.WithStage(context.WithoutCancel(ctx), StageReport)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	start := o.now()
	run.record(StageResult{Name: StageReport, Outcome: OutcomeSuccess, Attempts: 1})
	idx := len(run.Stages) - 1
	finalize := func() {
		run.FinishedAt = o.now()
		run.Stages[idx].Elapsed = run.FinishedAt.Sub(start)
		run.Outcome = run.computeOutcome()
	}
	fail := func(err error) {
		st := &run.Stages[idx]
		st.Outcome = OutcomeFailed
		st.ErrorClass = string(services.Classify(err))
		if st.Diagnostic != "" {
			st.Diagnostic += "\n"
		}
		st.Diagnostic += err.Error()
		finalize()
		logger.Error("report sink failed", logging.String(logging.FieldEventType, "stage_failed"), logging.Error(err))
	}
	finalize()

	r := o.reporter
	run.SummaryPath = r.summaryPath
	if err := r.writeSummary(run); err != nil {
		run.SummaryPath = ""
		fail(err)
	}
	if r.metricsPath != "" {
		if err := metrics.Export(r.metricsPath, metricsSample(run)); err != nil {
			fail(err)
		}
	}
	if err := r.persist(ctx, run); err != nil {
		fail(err)
	}

	if err := o.notifier.NotifyRunFinished(ctx, notice(run)); err != nil {
		logger.Warn("run notification failed",
			logging.String(logging.FieldEventType, "notify_failed"),
			logging.Error(err),
		)
	}

	if run.Stages[idx].Outcome.Succeeded() {
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("summary", run.SummaryPath),
			logging.Duration("stage_duration", run.Stages[idx].Elapsed),
		)
	}
}

func notice(run *Run) notifications.Notice {
	n := notifications.Notice{
		RunID:    run.ID,
		Command:  run.Command,
		Outcome:  string(run.Outcome),
		Duration: run.FinishedAt.Sub(run.StartedAt),
	}
	for _, s := range run.Stages {
		if s.Outcome == OutcomeFailed {
			n.FailedStages = append(n.FailedStages, s.Name)
		}
	}
	for _, a := range run.Artifacts {
		if a.Outcome.Succeeded() {
			n.Artifacts = append(n.Artifacts, filepath.Base(a.LocalPath))
		}
	}
	return n
}

func (r *Reporter) persist(ctx context.Context, run *Run) error {
	store, err := r.openStore()
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	saveErr := store.Save(ctx, Record(run))
	closeErr := store.Close()
	if saveErr != nil {
		return fmt.Errorf("save run: %w", saveErr)
	}
	return closeErr
}

func (r *Reporter) writeSummary(run *Run) error {
	data, err := json.MarshalIndent(Summarize(run), "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := fileutil.WriteFileAtomic(r.summaryPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Summary is the JSON document written by the report stage.
type Summary struct {
	RunID      string            `json:"run_id"`
	Command    string            `json:"command"`
	Outcome    string            `json:"outcome"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Stages     []SummaryStage    `json:"stages"`
	Artifacts  []SummaryArtifact `json:"artifacts"`
}

// SummaryStage is one stage in the JSON summary.
type SummaryStage struct {
	Name       string `json:"name"`
	Outcome    string `json:"outcome"`
	Attempts   int    `json:"attempts"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	ErrorClass string `json:"error_class,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// SummaryArtifact is one artifact in the JSON summary.
type SummaryArtifact struct {
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	LocalPath string `json:"local_path"`
	Rows      int    `json:"rows"`
	Bytes     int64  `json:"bytes"`
	SHA256    string `json:"sha256,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Summarize converts a run into its JSON summary form.
func Summarize(run *Run) Summary {
	s := Summary{
		RunID:      run.ID,
		Command:    run.Command,
		Outcome:    string(run.Outcome),
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Stages:     make([]SummaryStage, 0, len(run.Stages)),
		Artifacts:  make([]SummaryArtifact, 0, len(run.Artifacts)),
	}
	for _, st := range run.Stages {
		s.Stages = append(s.Stages, SummaryStage{
			Name:       st.Name,
			Outcome:    string(st.Outcome),
			Attempts:   st.Attempts,
			ElapsedMS:  st.Elapsed.Milliseconds(),
			ErrorClass: st.ErrorClass,
			Diagnostic: st.Diagnostic,
		})
	}
	for _, a := range run.Artifacts {
		s.Artifacts = append(s.Artifacts, SummaryArtifact{
			Name:      a.Name,
			Outcome:   string(a.Outcome),
			LocalPath: a.LocalPath,
			Rows:      a.Rows,
			Bytes:     a.Bytes,
			SHA256:    a.SHA256,
			Detail:    a.Detail,
		})
	}
	return s
}

// Record converts a run into its run store form.
func Record(run *Run) runstore.Record {
	rec := runstore.Record{
		RunID:       run.ID,
		Command:     run.Command,
		Outcome:     string(run.Outcome),
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		SummaryPath: run.SummaryPath,
	}
	for _, st := range run.Stages {
		rec.Stages = append(rec.Stages, runstore.StageRecord{
			Name:       st.Name,
			Outcome:    string(st.Outcome),
			Attempts:   st.Attempts,
			Elapsed:    st.Elapsed,
			ErrorClass: st.ErrorClass,
			Diagnostic: st.Diagnostic,
		})
	}
	for _, a := range run.Artifacts {
		rec.Artifacts = append(rec.Artifacts, runstore.ArtifactRecord{
			Name:      a.Name,
			LocalPath: a.LocalPath,
			Rows:      a.Rows,
			Bytes:     a.Bytes,
			SHA256:    a.SHA256,
			Present:   a.Outcome.Succeeded(),
		})
	}
	return rec
}

func metricsSample(run *Run) metrics.RunSample {
	sample := metrics.RunSample{
		Outcome:  string(run.Outcome),
		Started:  run.StartedAt,
		Finished: run.FinishedAt,
	}
	for _, st := range run.Stages {
		sample.Stages = append(sample.Stages, metrics.StageSample{
			Name:     st.Name,
			Outcome:  string(st.Outcome),
			Attempts: st.Attempts,
			Elapsed:  st.Elapsed,
		})
	}
	for _, a := range run.Artifacts {
		sample.Artifacts = append(sample.Artifacts, metrics.ArtifactSample{
			Name:    a.Name,
			Rows:    a.Rows,
			Bytes:   a.Bytes,
			Present: a.Outcome.Succeeded(),
		})
	}
	return sample
}
