package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/jobs"
	"weatherflow/internal/logging"
	"weatherflow/internal/notifications"
	"weatherflow/internal/preflight"
	"weatherflow/internal/procexec"
	"weatherflow/internal/readiness"
	"weatherflow/internal/retry"
	"weatherflow/internal/services"
	"weatherflow/internal/staging"
)

// Lifecycle brings the cluster up.
type Lifecycle interface {
	Start(ctx context.Context) error
}

// Prober waits for the cluster's storage layer to accept operations.
type Prober interface {
	WaitUntilReady(ctx context.Context, maxAttempts int, interval time.Duration) error
	Attempts() int
}

// Stager moves data to and from the cluster.
type Stager interface {
	Upload(ctx context.Context, local, remoteDir string, policy retry.Policy) (staging.Transfer, error)
	CopyToContainer(ctx context.Context, local, containerDir string, policy retry.Policy) (staging.Transfer, error)
	Download(ctx context.Context, artifact staging.ArtifactDescriptor) (staging.ArtifactResult, error)
}

// JobRunner executes one batch job.
type JobRunner interface {
	Run(ctx context.Context, spec jobs.JobSpec) (jobs.JobOutcome, error)
}

// PreflightFunc validates the local environment before the cluster is touched.
type PreflightFunc func(ctx context.Context, cfg *config.Config) error

// Orchestrator runs the pipeline stages in order.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	lifecycle Lifecycle
	prober    Prober
	stager    Stager
	jobs      JobRunner
	reporter  *Reporter
	notifier  notifications.Service
	preflight PreflightFunc
	command   string
	now       func() time.Time
}

// Option customises an Orchestrator.
type Option func(*options)

type options struct {
	sleep     retry.Sleeper
	preflight PreflightFunc
	command   string
	notifier  notifications.Service
}

// WithSleeper replaces every wait (settle, readiness interval, retry delay).
func WithSleeper(sleep retry.Sleeper) Option {
	return func(o *options) { o.sleep = sleep }
}

// WithPreflight replaces the environment checks run before lifecycle-start.
func WithPreflight(fn PreflightFunc) Option {
	return func(o *options) { o.preflight = fn }
}

// WithCommand names the CLI command recorded with the run.
func WithCommand(name string) Option {
	return func(o *options) { o.command = name }
}

// WithNotifier replaces the configured run-completion notifier.
func WithNotifier(n notifications.Service) Option {
	return func(o *options) { o.notifier = n }
}

// DefaultPreflight runs every preflight check and folds failures into a
// configuration error.
func DefaultPreflight(ctx context.Context, cfg *config.Config) error {
	return preflight.Err(preflight.RunAll(ctx, cfg))
}

// New wires the orchestrator and its collaborators over runner.
func New(cfg *config.Config, runner procexec.Runner, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := options{preflight: DefaultPreflight, command: "run"}
	for _, opt := range opts {
		opt(&o)
	}

	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	admin := cluster.NewAdmin(cfg, runner, logger)
	return &Orchestrator{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		lifecycle: cluster.NewLifecycle(cfg, runner, admin, logger, cluster.WithSleeper(o.sleep)),
		prober:    readiness.New(admin, logger, readiness.WithSleeper(o.sleep), readiness.WithLogTail(cfg.Cluster.LogTailLines)),
		stager:    staging.New(cfg, admin, logger, staging.WithSleeper(o.sleep)),
		jobs:      jobs.New(cfg, admin, logger),
		reporter:  NewReporter(cfg, logger),
		notifier:  o.notifier,
		preflight: o.preflight,
		command:   o.command,
		now:       time.Now,
	}
}

// Run executes the full pipeline. The returned Run is always complete with
// one result per stage, whatever happened.
func (o *Orchestrator) Run(ctx context.Context) *Run {
	run, ctx := o.begin(ctx)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("pipeline started", logging.String("command", run.Command))

	pending := StageOrder[:len(StageOrder)-1]
	abort := func(failed string) {
		run.Aborted = true
		o.skipRemaining(run, failed, pending)
	}

	if !o.startCluster(ctx, run) {
		abort(StageLifecycleStart)
	} else if !o.waitReady(ctx, run) {
		abort(StageReadiness)
	} else if !o.stageInput(ctx, run) {
		abort(StageInput)
	} else {
		o.runAnalyses(ctx, run)
	}

	o.report(ctx, run)
	logger.Info("pipeline finished",
		logging.String("outcome", string(run.Outcome)),
		logging.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
		logging.String(logging.FieldEventType, "pipeline_complete"),
	)
	return run
}

// Start brings the cluster up and waits for readiness without running jobs.
func (o *Orchestrator) Start(ctx context.Context) *Run {
	run, ctx := o.begin(ctx)
	if !o.startCluster(ctx, run) {
		run.Aborted = true
		o.skipRemaining(run, StageLifecycleStart, []string{StageLifecycleStart, StageReadiness})
	} else if !o.waitReady(ctx, run) {
		run.Aborted = true
	}
	run.FinishedAt = o.now()
	run.Outcome = run.computeOutcome()
	return run
}

func (o *Orchestrator) begin(ctx context.Context) (*Run, context.Context) {
	run := &Run{
		ID:        uuid.NewString(),
		Command:   o.command,
		StartedAt: o.now(),
	}
	return run, services.WithRunID(ctx, run.ID)
}

// runAnalyses runs both jobs and retrieves whatever they produced. Job
// failures never stop the other job.
func (o *Orchestrator) runAnalyses(ctx context.Context, run *Run) {
	succeeded := map[string]bool{}
	for _, job := range analysisJobs(o.cfg) {
		ok := o.execute(ctx, run, job.stage, func(ctx context.Context) stageReport {
			_, err := o.jobs.Run(ctx, jobs.Spec(o.cfg, job.name, job.script))
			var jobErr *jobs.JobError
			if errors.As(err, &jobErr) {
				return stageReport{attempts: 1, err: err, diagnostic: jobErr.Diagnostics}
			}
			return stageReport{attempts: 1, err: err}
		})
		succeeded[job.name] = ok
		if !ok && (ctx.Err() != nil || lastConfigurationFailure(run)) {
			run.Aborted = true
			o.skipRemaining(run, job.stage, StageOrder[:len(StageOrder)-1])
			return
		}
	}
	o.retrieveOutputs(ctx, run, succeeded)
}

func (o *Orchestrator) startCluster(ctx context.Context, run *Run) bool {
	return o.execute(ctx, run, StageLifecycleStart, func(ctx context.Context) stageReport {
		if err := o.cfg.EnsureDirectories(); err != nil {
			return stageReport{attempts: 1, err: services.Wrap(services.ErrConfiguration, StageLifecycleStart, "directories", "", err)}
		}
		if o.preflight != nil {
			if err := o.preflight(ctx, o.cfg); err != nil {
				return stageReport{attempts: 1, err: err}
			}
		}
		err := o.lifecycle.Start(ctx)
		var startErr *cluster.StartError
		if errors.As(err, &startErr) {
			return stageReport{attempts: 1, err: err, diagnostic: startErr.Logs}
		}
		return stageReport{attempts: 1, err: err}
	})
}

func (o *Orchestrator) waitReady(ctx context.Context, run *Run) bool {
	return o.execute(ctx, run, StageReadiness, func(ctx context.Context) stageReport {
		interval := time.Duration(o.cfg.Readiness.IntervalSeconds) * time.Second
		err := o.prober.WaitUntilReady(ctx, o.cfg.Readiness.MaxAttempts, interval)
		report := stageReport{attempts: o.prober.Attempts(), err: err}
		var timeoutErr *readiness.TimeoutError
		if errors.As(err, &timeoutErr) {
			report.diagnostic = timeoutErr.Logs
		}
		return report
	})
}

func (o *Orchestrator) stageInput(ctx context.Context, run *Run) bool {
	return o.execute(ctx, run, StageInput, func(ctx context.Context) stageReport {
		policy := staging.UploadPolicy(o.cfg)
		transfer, err := o.stager.Upload(ctx, o.cfg.Paths.InputFile, o.cfg.RemoteInputDir(), policy)
		attempts := transfer.Attempts
		if err != nil {
			return stageReport{attempts: attempts, err: err}
		}
		for _, job := range analysisJobs(o.cfg) {
			copied, err := o.stager.CopyToContainer(ctx, job.localScript(o.cfg), o.cfg.Jobs.ContainerDir, policy)
			attempts = max(attempts, copied.Attempts)
			if err != nil {
				return stageReport{attempts: attempts, err: err}
			}
		}
		return stageReport{attempts: attempts}
	})
}

func (o *Orchestrator) retrieveOutputs(ctx context.Context, run *Run, succeeded map[string]bool) {
	o.execute(ctx, run, StageRetrieveOutputs, func(ctx context.Context) stageReport {
		var failures []error
		attempts := 1
		for _, job := range analysisJobs(o.cfg) {
			local := job.localArtifact(o.cfg)
			outcome := ArtifactOutcome{Name: job.name, LocalPath: local}

			result, err := o.stager.Download(ctx, staging.ArtifactDescriptor{
				Name:          job.name,
				RemotePath:    path.Join(o.cfg.RemoteOutputDir(job.name), PartFile),
				LocalPath:     local,
				Header:        job.header,
				RequireExists: true,
			})
			attempts = max(attempts, result.Attempts)
			if err != nil {
				// never leave a previous run's file where this run produced nothing
				if rmErr := os.Remove(local); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					logging.WithContext(ctx, o.logger).Warn("failed to remove stale artifact", logging.String("path", local), logging.Error(rmErr))
				}
				if !succeeded[job.name] {
					err = fmt.Errorf("job %s did not succeed: %w", job.name, err)
				}
				outcome.Outcome = OutcomeFailed
				outcome.Detail = err.Error()
				failures = append(failures, err)
			} else {
				outcome.Outcome = OutcomeSuccess
				outcome.Rows = result.Rows
				outcome.Bytes = result.Bytes
				outcome.SHA256 = result.SHA256
			}
			run.Artifacts = append(run.Artifacts, outcome)
		}
		return stageReport{attempts: attempts, err: errors.Join(failures...)}
	})
}

// stageReport is what a stage body hands back to execute.
type stageReport struct {
	attempts   int
	err        error
	diagnostic string
}

// execute runs one stage body, logs it, and records its StageResult.
func (o *Orchestrator) execute(ctx context.Context, run *Run, name string, body func(context.Context) stageReport) bool {
	ctx = services.WithStage(ctx, name)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	start := o.now()
	report := body(ctx)
	result := StageResult{
		Name:     name,
		Attempts: max(report.attempts, 1),
		Elapsed:  o.now().Sub(start),
	}

	switch {
	case report.err != nil:
		result.Outcome = OutcomeFailed
		result.ErrorClass = string(services.Classify(report.err))
		result.Diagnostic = joinDiagnostic(report.err.Error(), report.diagnostic)
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failed"),
			logging.String("error_class", result.ErrorClass),
			logging.Int("attempts", result.Attempts),
			logging.Duration("stage_duration", result.Elapsed),
			logging.Error(report.err),
		)
	case result.Attempts > 1:
		result.Outcome = OutcomeRetried
	default:
		result.Outcome = OutcomeSuccess
	}
	if result.Outcome.Succeeded() {
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("outcome", string(result.Outcome)),
			logging.Int("attempts", result.Attempts),
			logging.Duration("stage_duration", result.Elapsed),
		)
	}
	run.record(result)
	return result.Outcome.Succeeded()
}

// skipRemaining records every stage in order that has no result yet.
func (o *Orchestrator) skipRemaining(run *Run, failed string, order []string) {
	for _, name := range order {
		if _, ok := run.Stage(name); ok {
			continue
		}
		run.record(StageResult{
			Name:       name,
			Outcome:    OutcomeSkipped,
			Diagnostic: fmt.Sprintf("skipped: %s failed", failed),
		})
		if name == StageRetrieveOutputs {
			for _, job := range analysisJobs(o.cfg) {
				run.Artifacts = append(run.Artifacts, ArtifactOutcome{
					Name:      job.name,
					Outcome:   OutcomeSkipped,
					LocalPath: job.localArtifact(o.cfg),
					Detail:    fmt.Sprintf("skipped: %s failed", failed),
				})
			}
		}
	}
}

func lastConfigurationFailure(run *Run) bool {
	if len(run.Stages) == 0 {
		return false
	}
	return run.Stages[len(run.Stages)-1].ErrorClass == string(services.ClassConfiguration)
}

func joinDiagnostic(message, detail string) string {
	if detail == "" {
		return message
	}
	return message + "\n" + detail
}
