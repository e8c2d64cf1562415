package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"weatherflow/internal/config"
	"weatherflow/internal/logging"
	"weatherflow/internal/logs"
	"weatherflow/internal/procexec"
	"weatherflow/internal/retry"
	"weatherflow/internal/services"
)

// ErrLifecycle marks a cluster that could not be brought up or torn down.
// It is a configuration failure: never retried, and it aborts the run.
var ErrLifecycle = fmt.Errorf("cluster lifecycle failure: %w", services.ErrConfiguration)

// ServiceState is one compose service and its reported state.
type ServiceState struct {
	Name  string
	State string
}

// ClusterState summarises the compose topology.
type ClusterState struct {
	Services  []ServiceState
	Reachable bool
	Detail    string
}

// Running reports whether every known service is running.
func (s ClusterState) Running() bool {
	if !s.Reachable || len(s.Services) == 0 {
		return false
	}
	for _, svc := range s.Services {
		if svc.State != "running" {
			return false
		}
	}
	return true
}

// Lifecycle starts, stops, and inspects the compose topology.
type Lifecycle struct {
	runner   procexec.Runner
	admin    *Admin
	cfg      *config.Config
	logger   *slog.Logger
	sleep    retry.Sleeper
	composeT time.Duration
}

// LifecycleOption customises a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithSleeper replaces the settle wait, mainly for tests.
func WithSleeper(sleep retry.Sleeper) LifecycleOption {
	return func(l *Lifecycle) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// NewLifecycle constructs a lifecycle manager.
func NewLifecycle(cfg *config.Config, runner procexec.Runner, admin *Admin, logger *slog.Logger, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		runner:   runner,
		admin:    admin,
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "cluster-lifecycle"),
		sleep:    retry.Sleep,
		composeT: composeTimeout(cfg),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start tears down any previous topology, brings a fresh one up, waits for it
// to settle, and confirms the coordinator container is running.
func (l *Lifecycle) Start(ctx context.Context) error {
	logger := logging.WithContext(ctx, l.logger)

	if _, err := l.compose(ctx, "down", "--remove-orphans"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("teardown of previous topology failed; continuing",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cluster_down_ignored"),
		)
	}

	if res, err := l.compose(ctx, "up", "-d"); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if services.IsConfiguration(err) {
			return err
		}
		detail := logs.TailText(string(res.Stderr), l.cfg.Cluster.LogTailLines)
		return services.Wrap(ErrLifecycle, "lifecycle-start", "compose up", detail, err)
	}

	settle := l.cfg.SettleInterval()
	logger.Info("cluster starting; waiting for services to settle", logging.Duration("settle", settle))
	if err := l.sleep(ctx, settle); err != nil {
		return err
	}

	running, err := l.admin.CoordinatorRunning(ctx)
	if err == nil && running {
		logger.Info("coordinator container running", logging.String("container", l.admin.Coordinator()))
		return nil
	}

	recent, logErr := l.admin.CoordinatorLogs(ctx, l.cfg.Cluster.LogTailLines)
	if logErr != nil {
		recent = fmt.Sprintf("coordinator logs unavailable: %v", logErr)
	}
	msg := fmt.Sprintf("coordinator %q not running after start", l.admin.Coordinator())
	if err != nil {
		msg = fmt.Sprintf("coordinator %q state unknown: %v", l.admin.Coordinator(), err)
	}
	return &StartError{Message: msg, Logs: recent}
}

// Stop tears the topology down.
func (l *Lifecycle) Stop(ctx context.Context) error {
	if _, err := l.compose(ctx, "down", "--remove-orphans"); err != nil {
		return services.Wrap(ErrLifecycle, "stop", "compose down", "", err)
	}
	logging.WithContext(ctx, l.logger).Info("cluster stopped")
	return nil
}

// Prune tears the topology down including its volumes and prunes dangling volumes.
func (l *Lifecycle) Prune(ctx context.Context) error {
	if _, err := l.compose(ctx, "down", "-v", "--remove-orphans"); err != nil {
		return services.Wrap(ErrLifecycle, "clean", "compose down", "", err)
	}
	cmd := procexec.Command{Name: l.cfg.Cluster.DockerBinary, Args: []string{"volume", "prune", "-f"}, Timeout: l.composeT}
	if _, err := l.runner.Run(ctx, cmd); err != nil {
		return services.Wrap(ErrLifecycle, "clean", "volume prune", "", err)
	}
	logging.WithContext(ctx, l.logger).Info("cluster volumes pruned")
	return nil
}

// Status reports the compose topology. It never fails; an unreachable
// topology is described in the returned value.
func (l *Lifecycle) Status(ctx context.Context) ClusterState {
	res, err := l.compose(ctx, "ps", "--all", "--format", "{{.Service}}\t{{.State}}")
	if err != nil {
		return ClusterState{Reachable: false, Detail: err.Error()}
	}
	return ClusterState{Reachable: true, Services: ParseServiceStates(string(res.Stdout))}
}

// ParseServiceStates parses tab-separated `service state` lines.
func ParseServiceStates(out string) []ServiceState {
	var states []ServiceState
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, state, found := strings.Cut(line, "\t")
		if !found {
			fields := strings.Fields(line)
			name = fields[0]
			if len(fields) > 1 {
				state = fields[1]
			}
		}
		states = append(states, ServiceState{Name: strings.TrimSpace(name), State: strings.ToLower(strings.TrimSpace(state))})
	}
	return states
}

func (l *Lifecycle) compose(ctx context.Context, args ...string) (procexec.Result, error) {
	full := []string{"compose"}
	if file := l.cfg.Cluster.ComposeFile; file != "" {
		full = append(full, "-f", file)
	}
	if project := l.cfg.Cluster.ComposeProject; project != "" {
		full = append(full, "-p", project)
	}
	full = append(full, args...)
	return l.runner.Run(ctx, procexec.Command{
		Name:    l.cfg.Cluster.DockerBinary,
		Args:    full,
		Dir:     l.cfg.Paths.ProjectDir,
		Timeout: l.composeT,
	})
}

// StartError reports a topology that came up without a running coordinator.
type StartError struct {
	Message string
	Logs    string
}

func (e *StartError) Error() string { return e.Message }

func (e *StartError) Unwrap() error { return ErrLifecycle }

func composeTimeout(cfg *config.Config) time.Duration {
	// image pulls on first start can dwarf an admin call
	return 10 * cfg.AdminTimeout()
}
