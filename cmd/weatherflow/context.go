package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/logging"
	"weatherflow/internal/pipeline"
	"weatherflow/internal/procexec"
	"weatherflow/internal/retry"
	"weatherflow/internal/runlock"
)

type commandContext struct {
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	loadConfig func(path string) (*config.Config, string, bool, error)
	newRunner  func(logger *slog.Logger) procexec.Runner
	sleep      retry.Sleeper

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	runnerOnce sync.Once
	runner     procexec.Runner
}

func newCommandContext() *commandContext {
	return &commandContext{
		loadConfig: loadConfig,
		newRunner: func(logger *slog.Logger) procexec.Runner {
			return procexec.New(procexec.WithLogger(logger))
		},
	}
}

func loadConfig(path string) (*config.Config, string, bool, error) {
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		return nil, resolved, exists, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, resolved, exists, err
	}
	return cfg, resolved, exists, nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := c.loadConfig(strings.TrimSpace(c.configFlag))
		c.configPath, c.configExists = path, exists
		if err != nil {
			c.configErr = err
			return
		}
		if level := strings.TrimSpace(c.logLevelFlag); level != "" {
			cfg.Logging.Level = level
		}
		if format := strings.TrimSpace(c.logFormatFlag); format != "" {
			cfg.Logging.Format = format
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// env returns the loaded config together with its logger.
func (c *commandContext) env() (*config.Config, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (c *commandContext) processRunner(logger *slog.Logger) procexec.Runner {
	c.runnerOnce.Do(func() {
		c.runner = c.newRunner(logger)
	})
	return c.runner
}

func (c *commandContext) orchestrator(command string) (*pipeline.Orchestrator, error) {
	cfg, logger, err := c.env()
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{pipeline.WithCommand(command)}
	if c.sleep != nil {
		opts = append(opts, pipeline.WithSleeper(c.sleep))
	}
	return pipeline.New(cfg, c.processRunner(logger), logger, opts...), nil
}

func (c *commandContext) clusterTools() (*cluster.Admin, *cluster.Lifecycle, error) {
	cfg, logger, err := c.env()
	if err != nil {
		return nil, nil, err
	}
	runner := c.processRunner(logger)
	admin := cluster.NewAdmin(cfg, runner, logger)
	return admin, cluster.NewLifecycle(cfg, runner, admin, logger, cluster.WithSleeper(c.sleep)), nil
}

// withRunLock holds the host-wide run lock for the duration of fn.
func (c *commandContext) withRunLock(fn func() error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	lock, err := runlock.Acquire(cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	if cmd.Name() == "help" {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
