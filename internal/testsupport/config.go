package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"weatherflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The input dataset and both job scripts are written, and every wait is
// zeroed so retry loops run instantly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ProjectDir = base
	cfgVal.Paths.InputFile = filepath.Join(base, "data", "raw", "weather_data.csv")
	cfgVal.Paths.OutputDir = filepath.Join(base, "data", "processed")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Jobs.ScriptsDir = filepath.Join(base, "mapreduce")
	cfgVal.Cluster.SettleSeconds = 0
	cfgVal.Readiness.IntervalSeconds = 0
	cfgVal.Staging.DelaySeconds = 0
	cfgVal.Staging.MkdirDelaySeconds = 0
	cfgVal.Retrieval.CheckDelaySeconds = 0

	WriteFile(t, cfgVal.Paths.InputFile, SampleDataset)
	WriteFile(t, filepath.Join(cfgVal.Jobs.ScriptsDir, cfgVal.Jobs.TemperatureScript), "# temperature job\n")
	WriteFile(t, filepath.Join(cfgVal.Jobs.ScriptsDir, cfgVal.Jobs.PrecipitationScript), "# precipitation job\n")
	WriteFile(t, filepath.Join(base, cfgVal.Cluster.ComposeFile), "services: {}\n")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMetricsTextfile enables the Prometheus textfile export under the temp dir.
func WithMetricsTextfile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, "metrics", "weatherflow.prom")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, docker is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"docker"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.ProjectDir
}
