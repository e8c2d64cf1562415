package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory and file locations.
type Paths struct {
	ProjectDir string `toml:"project_dir"`
	InputFile  string `toml:"input_file"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// Cluster describes how the containerised storage/compute cluster is reached.
type Cluster struct {
	ComposeFile         string `toml:"compose_file"`
	ComposeProject      string `toml:"compose_project"`
	Coordinator         string `toml:"coordinator"`
	DockerBinary        string `toml:"docker_binary"`
	HDFSBinary          string `toml:"hdfs_binary"`
	RemoteRoot          string `toml:"remote_root"`
	ContainerTmpDir     string `toml:"container_tmp_dir"`
	Permissions         string `toml:"permissions"`
	SettleSeconds       int    `toml:"settle_seconds"`
	AdminTimeoutSeconds int    `toml:"admin_timeout_seconds"`
	LogTailLines        int    `toml:"log_tail_lines"`
}

// Readiness controls how long the coordinator is polled before giving up.
type Readiness struct {
	MaxAttempts     int `toml:"max_attempts"`
	IntervalSeconds int `toml:"interval_seconds"`
}

// Staging controls retry budgets for remote directory creation and uploads.
type Staging struct {
	MaxAttempts           int `toml:"max_attempts"`
	DelaySeconds          int `toml:"delay_seconds"`
	AttemptTimeoutSeconds int `toml:"attempt_timeout_seconds"`
	MkdirAttempts         int `toml:"mkdir_attempts"`
	MkdirDelaySeconds     int `toml:"mkdir_delay_seconds"`
}

// Jobs describes the batch analysis executables and how they are launched.
type Jobs struct {
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	Interpreter         string   `toml:"interpreter"`
	Runner              string   `toml:"runner"`
	ScriptsDir          string   `toml:"scripts_dir"`
	ContainerDir        string   `toml:"container_dir"`
	TemperatureScript   string   `toml:"temperature_script"`
	PrecipitationScript string   `toml:"precipitation_script"`
	LogFiles            []string `toml:"log_files"`
}

// Retrieval controls how job outputs are fetched back to local storage.
type Retrieval struct {
	CheckAttempts     int  `toml:"check_attempts"`
	CheckDelaySeconds int  `toml:"check_delay_seconds"`
	DecodeUTF16       bool `toml:"decode_utf16"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Notifications contains configuration for ntfy run-completion pushes.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for weatherflow.
//
// Configuration sections by subsystem:
//   - Paths: project directory, input dataset, output and log directories
//   - Cluster: compose topology, coordinator container, remote root
//   - Readiness: coordinator polling budget
//   - Staging: upload and directory-creation retry budgets
//   - Jobs: batch analysis executables and their timeout
//   - Retrieval: artifact existence checks and decoding
//   - Logging: log format and level
//   - Metrics: optional Prometheus textfile output
//   - Notifications: optional ntfy push when a run finishes
type Config struct {
	Paths     Paths     `toml:"paths"`
	Cluster   Cluster   `toml:"cluster"`
	Readiness Readiness `toml:"readiness"`
	Staging   Staging   `toml:"staging"`
	Jobs      Jobs      `toml:"jobs"`
	Retrieval Retrieval `toml:"retrieval"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("weatherflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the local directories a pipeline run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RemoteInputDir is the cluster directory the input dataset is staged into.
func (c *Config) RemoteInputDir() string {
	return path.Join(c.Cluster.RemoteRoot, "input")
}

// RemoteInputPath is the cluster path of the staged input dataset.
func (c *Config) RemoteInputPath() string {
	return path.Join(c.RemoteInputDir(), filepath.Base(c.Paths.InputFile))
}

// RemoteOutputDir is the cluster directory a named job writes into.
func (c *Config) RemoteOutputDir(job string) string {
	return path.Join(c.Cluster.RemoteRoot, "output", job)
}

// SettleInterval is how long Start waits after bringing the topology up.
func (c *Config) SettleInterval() time.Duration {
	return seconds(c.Cluster.SettleSeconds)
}

// AdminTimeout bounds every administrative call against the cluster.
func (c *Config) AdminTimeout() time.Duration {
	return seconds(c.Cluster.AdminTimeoutSeconds)
}

// JobTimeout is the hard wall-clock limit for a single batch job.
func (c *Config) JobTimeout() time.Duration {
	return seconds(c.Jobs.TimeoutSeconds)
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// resolveUnder expands pathValue and anchors relative values at base.
func resolveUnder(base, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" || strings.HasPrefix(pathValue, "~") || filepath.IsAbs(pathValue) {
		return expandPath(pathValue)
	}
	return expandPath(filepath.Join(base, pathValue))
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
