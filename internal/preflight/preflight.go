package preflight

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"weatherflow/internal/config"
	"weatherflow/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckFileReadable("Input dataset", cfg.Paths.InputFile))
	results = append(results, CheckFileReadable("Compose file", composePath(cfg)))
	results = append(results, CheckFileReadable("Temperature job", filepath.Join(cfg.Jobs.ScriptsDir, cfg.Jobs.TemperatureScript)))
	results = append(results, CheckFileReadable("Precipitation job", filepath.Join(cfg.Jobs.ScriptsDir, cfg.Jobs.PrecipitationScript)))

	for _, status := range CheckSystemDeps(ctx, cfg) {
		detail := status.Description
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: detail})
	}
	return results
}

// Err folds failed checks into a single configuration error, or nil.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "checks", strings.Join(failed, "; "), nil)
}

func composePath(cfg *config.Config) string {
	file := cfg.Cluster.ComposeFile
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(cfg.Paths.ProjectDir, file)
}
