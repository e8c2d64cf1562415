// Package jobs launches the batch analysis jobs inside the coordinator
// container and confirms they produced output.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/logging"
	"weatherflow/internal/logs"
	"weatherflow/internal/procexec"
	"weatherflow/internal/services"
)

// PartFilePrefix identifies job output shards in a listing.
const PartFilePrefix = "part-"

// JobSpec is one job invocation.
type JobSpec struct {
	Name       string
	Executable string
	InputPath  string
	OutputDir  string
	Timeout    time.Duration
	LogPaths   []string
}

// JobOutcome summarises a successful job.
type JobOutcome struct {
	StdoutBytes int
	StderrBytes int
	OutputFiles []string
	Duration    time.Duration
}

// ErrorKind distinguishes the ways a job can fail.
type ErrorKind string

const (
	KindTimedOut    ErrorKind = "timed_out"
	KindFailed      ErrorKind = "failed"
	KindEmptyOutput ErrorKind = "empty_output"
)

// JobError reports a failed job with its collected diagnostics.
type JobError struct {
	Job         string
	Kind        ErrorKind
	Diagnostics string
	Err         error
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("job %s %s", e.Job, strings.ReplaceAll(string(e.Kind), "_", " "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() []error {
	marker := services.ErrExternalTool
	switch e.Kind {
	case KindTimedOut:
		marker = services.ErrTimeout
	case KindEmptyOutput:
		marker = services.ErrVerification
	}
	if e.Err == nil {
		return []error{marker}
	}
	return []error{marker, e.Err}
}

// Admin is the subset of cluster administration jobs need.
type Admin interface {
	Remove(ctx context.Context, remote string) error
	List(ctx context.Context, remote string) (string, error)
	Exec(ctx context.Context, timeout time.Duration, args ...string) (procexec.Result, error)
	KillPattern(ctx context.Context, pattern string) error
	TailContainerFile(ctx context.Context, containerPath string, lines int) (string, error)
}

// Runner executes jobs.
type Runner struct {
	admin        Admin
	logger       *slog.Logger
	interpreter  string
	engine       string
	adminTimeout time.Duration
	tailLines    int
}

// New constructs a job runner.
func New(cfg *config.Config, admin Admin, logger *slog.Logger) *Runner {
	return &Runner{
		admin:        admin,
		logger:       logging.NewComponentLogger(logger, "jobs"),
		interpreter:  cfg.Jobs.Interpreter,
		engine:       cfg.Jobs.Runner,
		adminTimeout: cfg.AdminTimeout(),
		tailLines:    cfg.Cluster.LogTailLines,
	}
}

// Spec builds the JobSpec for a named job from configuration.
func Spec(cfg *config.Config, name, script string) JobSpec {
	return JobSpec{
		Name:       name,
		Executable: path.Join(cfg.Jobs.ContainerDir, script),
		InputPath:  cfg.RemoteInputPath(),
		OutputDir:  cfg.RemoteOutputDir(name),
		Timeout:    cfg.JobTimeout(),
		LogPaths:   cfg.Jobs.LogFiles,
	}
}

// Run clears the job's output directory, runs it under its hard timeout,
// and checks that it wrote at least one part file.
func (r *Runner) Run(ctx context.Context, spec JobSpec) (JobOutcome, error) {
	ctx = services.WithJob(ctx, spec.Name)
	logger := logging.WithContext(ctx, r.logger)
	var outcome JobOutcome

	if err := r.admin.Remove(ctx, spec.OutputDir); err != nil {
		return outcome, &JobError{Job: spec.Name, Kind: KindFailed, Err: fmt.Errorf("clear output directory: %w", err)}
	}

	args := []string{
		r.interpreter, spec.Executable,
		"-r", r.engine,
		"--output-dir", "hdfs://" + spec.OutputDir,
		"hdfs://" + spec.InputPath,
	}
	logger.Info("job started",
		logging.String("executable", spec.Executable),
		logging.Duration("timeout", spec.Timeout),
		logging.String(logging.FieldEventType, "job_start"),
	)
	start := time.Now()
	res, err := r.admin.Exec(ctx, spec.Timeout, args...)
	outcome.Duration = time.Since(start)
	outcome.StdoutBytes = len(res.Stdout)
	outcome.StderrBytes = len(res.Stderr)

	if err != nil {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		if res.TimedOut || errors.Is(err, services.ErrTimeout) {
			r.killStragglers(ctx, spec)
			return outcome, &JobError{
				Job:         spec.Name,
				Kind:        KindTimedOut,
				Diagnostics: logs.Excerpt("stderr", logs.TailText(string(res.Stderr), r.tailLines)),
				Err:         fmt.Errorf("exceeded %s", spec.Timeout),
			}
		}
		return outcome, &JobError{
			Job:         spec.Name,
			Kind:        KindFailed,
			Diagnostics: r.failureDiagnostics(ctx, spec, res),
			Err:         err,
		}
	}

	listing, err := r.admin.List(ctx, spec.OutputDir)
	if err != nil {
		return outcome, &JobError{Job: spec.Name, Kind: KindEmptyOutput, Err: fmt.Errorf("list output: %w", err)}
	}
	for _, entry := range cluster.ParseListing(listing) {
		if !entry.IsDir && strings.HasPrefix(path.Base(entry.Path), PartFilePrefix) {
			outcome.OutputFiles = append(outcome.OutputFiles, entry.Path)
		}
	}
	if len(outcome.OutputFiles) == 0 {
		return outcome, &JobError{
			Job:         spec.Name,
			Kind:        KindEmptyOutput,
			Diagnostics: logs.Excerpt("stderr", logs.TailText(string(res.Stderr), r.tailLines)),
			Err:         fmt.Errorf("no %s* files in %s", PartFilePrefix, spec.OutputDir),
		}
	}

	logger.Info("job completed",
		logging.Duration("duration", outcome.Duration),
		logging.Int("output_files", len(outcome.OutputFiles)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
	return outcome, nil
}

// killStragglers stops any job process the container kept alive after the
// local process group was killed.
func (r *Runner) killStragglers(ctx context.Context, spec JobSpec) {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.adminTimeout)
	defer cancel()
	if err := r.admin.KillPattern(killCtx, spec.Executable); err != nil {
		logging.WithContext(ctx, r.logger).Warn("failed to stop timed-out job inside container",
			logging.String("executable", spec.Executable),
			logging.Error(err),
		)
	}
}

func (r *Runner) failureDiagnostics(ctx context.Context, spec JobSpec, res procexec.Result) string {
	parts := make([]string, 0, len(spec.LogPaths)+1)
	parts = append(parts, logs.Excerpt("stderr", logs.TailText(string(res.Stderr), r.tailLines)))
	for _, logPath := range spec.LogPaths {
		text, err := r.admin.TailContainerFile(ctx, logPath, r.tailLines)
		if err != nil {
			continue
		}
		parts = append(parts, logs.Excerpt(logPath, text))
	}
	return logs.JoinExcerpts(parts...)
}
