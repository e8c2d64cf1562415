package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"weatherflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("WEATHERFLOW_PROJECT_DIR", project)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	if cfg.Paths.ProjectDir != project {
		t.Fatalf("unexpected project dir: got %q want %q", cfg.Paths.ProjectDir, project)
	}
	wantInput := filepath.Join(project, "data", "raw", "weather_data.csv")
	if cfg.Paths.InputFile != wantInput {
		t.Fatalf("unexpected input file: got %q want %q", cfg.Paths.InputFile, wantInput)
	}
	if cfg.Paths.OutputDir != filepath.Join(project, "data", "processed") {
		t.Fatalf("unexpected output dir: %q", cfg.Paths.OutputDir)
	}
	wantLogs := filepath.Join(tempHome, ".local", "share", "weatherflow", "logs")
	if cfg.Paths.LogDir != wantLogs {
		t.Fatalf("unexpected log dir: got %q want %q", cfg.Paths.LogDir, wantLogs)
	}
	if cfg.Cluster.ComposeFile != filepath.Join(project, "docker-compose.yml") {
		t.Fatalf("unexpected compose file: %q", cfg.Cluster.ComposeFile)
	}
	if cfg.Cluster.Coordinator != "namenode" {
		t.Fatalf("unexpected coordinator: %q", cfg.Cluster.Coordinator)
	}
	if cfg.Metrics.TextfilePath != "" {
		t.Fatalf("expected metrics export disabled by default, got %q", cfg.Metrics.TextfilePath)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "weatherflow.toml")

	type payload struct {
		Paths struct {
			ProjectDir string `toml:"project_dir"`
			InputFile  string `toml:"input_file"`
		} `toml:"paths"`
		Cluster struct {
			RemoteRoot  string `toml:"remote_root"`
			Coordinator string `toml:"coordinator"`
		} `toml:"cluster"`
		Readiness struct {
			MaxAttempts int `toml:"max_attempts"`
		} `toml:"readiness"`
	}
	custom := payload{}
	custom.Paths.ProjectDir = tempDir
	custom.Paths.InputFile = "in/cities.csv"
	custom.Cluster.RemoteRoot = "/data/weather/"
	custom.Cluster.Coordinator = "hdfs-nn"
	custom.Readiness.MaxAttempts = 7
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.InputFile != filepath.Join(tempDir, "in", "cities.csv") {
		t.Fatalf("expected input file under project dir, got %q", cfg.Paths.InputFile)
	}
	if cfg.Cluster.RemoteRoot != "/data/weather" {
		t.Fatalf("expected cleaned remote root, got %q", cfg.Cluster.RemoteRoot)
	}
	if cfg.Cluster.Coordinator != "hdfs-nn" {
		t.Fatalf("expected coordinator override, got %q", cfg.Cluster.Coordinator)
	}
	if cfg.Readiness.MaxAttempts != 7 {
		t.Fatalf("expected readiness attempts 7, got %d", cfg.Readiness.MaxAttempts)
	}
	if cfg.Readiness.IntervalSeconds != config.Default().Readiness.IntervalSeconds {
		t.Fatalf("expected default readiness interval, got %d", cfg.Readiness.IntervalSeconds)
	}
}

func TestRemotePathsDeriveFromSingleRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Cluster.RemoteRoot = "/user/hadoop/climate"
	cfg.Paths.InputFile = "/local/data/weather_data.csv"

	if got := cfg.RemoteInputDir(); got != "/user/hadoop/climate/input" {
		t.Fatalf("unexpected input dir %q", got)
	}
	if got := cfg.RemoteInputPath(); got != "/user/hadoop/climate/input/weather_data.csv" {
		t.Fatalf("unexpected input path %q", got)
	}
	if got := cfg.RemoteOutputDir("temperature"); got != "/user/hadoop/climate/output/temperature" {
		t.Fatalf("unexpected output dir %q", got)
	}
	if cfg.JobTimeout() != 30*time.Minute {
		t.Fatalf("unexpected job timeout %s", cfg.JobTimeout())
	}
}

func TestEnvOverridesRemoteRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WEATHERFLOW_PROJECT_DIR", t.TempDir())
	t.Setenv("WEATHERFLOW_REMOTE_ROOT", "/env/root")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Cluster.RemoteRoot != "/env/root" {
		t.Fatalf("expected remote root from env, got %q", cfg.Cluster.RemoteRoot)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "remote_root") {
		t.Fatalf("sample config missing remote_root: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Cluster.Coordinator != "namenode" {
		t.Fatalf("expected sample coordinator namenode, got %q", cfg.Cluster.Coordinator)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"relative remote root", func(c *config.Config) { c.Cluster.RemoteRoot = "user/root" }},
		{"filesystem root", func(c *config.Config) { c.Cluster.RemoteRoot = "/" }},
		{"missing coordinator", func(c *config.Config) { c.Cluster.Coordinator = "" }},
		{"zero readiness attempts", func(c *config.Config) { c.Readiness.MaxAttempts = 0 }},
		{"zero job timeout", func(c *config.Config) { c.Jobs.TimeoutSeconds = 0 }},
		{"negative delay", func(c *config.Config) { c.Staging.DelaySeconds = -1 }},
		{"relative container dir", func(c *config.Config) { c.Jobs.ContainerDir = "jobs" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
