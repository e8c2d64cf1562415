package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCluster(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	return c.validateBudgets()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InputFile) == "" {
		return errors.New("paths.input_file must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateCluster() error {
	if c.Cluster.Coordinator == "" {
		return errors.New("cluster.coordinator must be set")
	}
	if c.Cluster.ComposeProject == "" {
		return errors.New("cluster.compose_project must be set")
	}
	root := c.Cluster.RemoteRoot
	if root == "" || !strings.HasPrefix(root, "/") {
		return fmt.Errorf("cluster.remote_root must be an absolute cluster path, got %q", root)
	}
	if root == "/" {
		return errors.New("cluster.remote_root must not be the filesystem root")
	}
	if c.Cluster.SettleSeconds < 0 {
		return errors.New("cluster.settle_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.TemperatureScript == "" {
		return errors.New("jobs.temperature_script must be set")
	}
	if c.Jobs.PrecipitationScript == "" {
		return errors.New("jobs.precipitation_script must be set")
	}
	if !strings.HasPrefix(c.Jobs.ContainerDir, "/") {
		return fmt.Errorf("jobs.container_dir must be an absolute container path, got %q", c.Jobs.ContainerDir)
	}
	return nil
}

func (c *Config) validateBudgets() error {
	if err := ensurePositiveMap(map[string]int{
		"cluster.admin_timeout_seconds":   c.Cluster.AdminTimeoutSeconds,
		"readiness.max_attempts":          c.Readiness.MaxAttempts,
		"readiness.interval_seconds":      c.Readiness.IntervalSeconds,
		"staging.max_attempts":            c.Staging.MaxAttempts,
		"staging.attempt_timeout_seconds": c.Staging.AttemptTimeoutSeconds,
		"staging.mkdir_attempts":          c.Staging.MkdirAttempts,
		"jobs.timeout_seconds":            c.Jobs.TimeoutSeconds,
		"retrieval.check_attempts":        c.Retrieval.CheckAttempts,
	}); err != nil {
		return err
	}
	if c.Staging.DelaySeconds < 0 || c.Staging.MkdirDelaySeconds < 0 || c.Retrieval.CheckDelaySeconds < 0 {
		return errors.New("retry delays must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
