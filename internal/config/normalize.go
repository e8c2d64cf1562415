package config

import (
	"fmt"
	"os"
	"path"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCluster(); err != nil {
		return err
	}
	if err := c.normalizeJobs(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return c.normalizeMetrics()
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("WEATHERFLOW_PROJECT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.ProjectDir = value
	}
	if strings.TrimSpace(c.Paths.ProjectDir) == "" {
		c.Paths.ProjectDir = defaultProjectDir
	}
	var err error
	if c.Paths.ProjectDir, err = expandPath(c.Paths.ProjectDir); err != nil {
		return fmt.Errorf("paths.project_dir: %w", err)
	}
	base := c.Paths.ProjectDir
	if c.Paths.InputFile, err = resolveUnder(base, c.Paths.InputFile); err != nil {
		return fmt.Errorf("paths.input_file: %w", err)
	}
	if c.Paths.OutputDir, err = resolveUnder(base, c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = resolveUnder(base, c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCluster() error {
	var err error
	if strings.TrimSpace(c.Cluster.ComposeFile) == "" {
		c.Cluster.ComposeFile = defaultComposeFile
	}
	if c.Cluster.ComposeFile, err = resolveUnder(c.Paths.ProjectDir, c.Cluster.ComposeFile); err != nil {
		return fmt.Errorf("cluster.compose_file: %w", err)
	}
	c.Cluster.ComposeProject = strings.TrimSpace(c.Cluster.ComposeProject)
	c.Cluster.Coordinator = strings.TrimSpace(c.Cluster.Coordinator)
	c.Cluster.DockerBinary = strings.TrimSpace(c.Cluster.DockerBinary)
	if c.Cluster.DockerBinary == "" {
		c.Cluster.DockerBinary = defaultDockerBinary
	}
	c.Cluster.HDFSBinary = strings.TrimSpace(c.Cluster.HDFSBinary)
	if c.Cluster.HDFSBinary == "" {
		c.Cluster.HDFSBinary = defaultHDFSBinary
	}
	if value, ok := os.LookupEnv("WEATHERFLOW_REMOTE_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Cluster.RemoteRoot = value
	}
	if root := strings.TrimSpace(c.Cluster.RemoteRoot); root != "" {
		c.Cluster.RemoteRoot = path.Clean(root)
	}
	c.Cluster.ContainerTmpDir = strings.TrimSpace(c.Cluster.ContainerTmpDir)
	if c.Cluster.ContainerTmpDir == "" {
		c.Cluster.ContainerTmpDir = defaultContainerTmpDir
	}
	c.Cluster.Permissions = strings.TrimSpace(c.Cluster.Permissions)
	if c.Cluster.LogTailLines <= 0 {
		c.Cluster.LogTailLines = defaultLogTailLines
	}
	return nil
}

func (c *Config) normalizeJobs() error {
	var err error
	if strings.TrimSpace(c.Jobs.ScriptsDir) == "" {
		c.Jobs.ScriptsDir = defaultScriptsDir
	}
	if c.Jobs.ScriptsDir, err = resolveUnder(c.Paths.ProjectDir, c.Jobs.ScriptsDir); err != nil {
		return fmt.Errorf("jobs.scripts_dir: %w", err)
	}
	c.Jobs.Interpreter = strings.TrimSpace(c.Jobs.Interpreter)
	if c.Jobs.Interpreter == "" {
		c.Jobs.Interpreter = defaultInterpreter
	}
	c.Jobs.Runner = strings.ToLower(strings.TrimSpace(c.Jobs.Runner))
	if c.Jobs.Runner == "" {
		c.Jobs.Runner = defaultJobRunner
	}
	if dir := strings.TrimSpace(c.Jobs.ContainerDir); dir != "" {
		c.Jobs.ContainerDir = path.Clean(dir)
	}
	c.Jobs.TemperatureScript = strings.TrimSpace(c.Jobs.TemperatureScript)
	c.Jobs.PrecipitationScript = strings.TrimSpace(c.Jobs.PrecipitationScript)
	files := make([]string, 0, len(c.Jobs.LogFiles))
	for _, file := range c.Jobs.LogFiles {
		if trimmed := strings.TrimSpace(file); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	c.Jobs.LogFiles = files
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.TextfilePath) == "" {
		c.Metrics.TextfilePath = ""
		return nil
	}
	var err error
	if c.Metrics.TextfilePath, err = resolveUnder(c.Paths.ProjectDir, c.Metrics.TextfilePath); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}
