package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"weatherflow/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration utilities",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration for the weather pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)

			// Report where the sample points on this machine.
			cfg, _, _, err := config.Load(target)
			if err != nil {
				fmt.Fprintf(out, "Sample does not load yet: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "Project dir resolves to %s; set paths.project_dir or WEATHERFLOW_PROJECT_DIR to change it.\n", cfg.Paths.ProjectDir)
			fmt.Fprintf(out, "Place the weather dataset at %s before `weatherflow run`.\n", cfg.Paths.InputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	target := strings.TrimSpace(flagValue)
	if target == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return defaultPath, nil
	}
	expanded, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return expanded, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and check the local project layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := ctx.loadConfig(strings.TrimSpace(ctx.configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			source := path
			if !exists {
				source += " (not found, defaults used)"
			}
			layout, issues := projectLayoutLines(cfg, colorize)
			lines := []string{renderStatusLine("Config", statusInfo, source, colorize)}
			lines = append(lines, layout...)
			lines = append(lines, integrationLines(cfg, colorize)...)
			writeSection(out, "Configuration", lines, colorize)

			if issues == 0 {
				fmt.Fprintln(out, "Configuration valid")
			} else {
				fmt.Fprintf(out, "Configuration valid; %s flagged above\n", describeCount(issues, "project file"))
			}
			return nil
		},
	}
}

// projectLayoutLines checks the local files a run depends on. Missing files
// are warnings: the config itself is still valid.
func projectLayoutLines(cfg *config.Config, colorize bool) ([]string, int) {
	checks := []struct {
		label string
		path  string
	}{
		{"Compose file", projectPath(cfg, cfg.Cluster.ComposeFile)},
		{"Input dataset", cfg.Paths.InputFile},
		{"Temperature job", filepath.Join(cfg.Jobs.ScriptsDir, cfg.Jobs.TemperatureScript)},
		{"Precipitation job", filepath.Join(cfg.Jobs.ScriptsDir, cfg.Jobs.PrecipitationScript)},
	}

	lines := []string{renderStatusLine("Project dir", statusInfo, cfg.Paths.ProjectDir, colorize)}
	issues := 0
	for _, check := range checks {
		info, err := os.Stat(check.path)
		switch {
		case err != nil:
			issues++
			lines = append(lines, renderStatusLine(check.label, statusWarn, "missing: "+check.path, colorize))
		case info.IsDir():
			issues++
			lines = append(lines, renderStatusLine(check.label, statusError, "is a directory: "+check.path, colorize))
		default:
			lines = append(lines, renderStatusLine(check.label, statusOK, check.path, colorize))
		}
	}
	return lines, issues
}

func integrationLines(cfg *config.Config, colorize bool) []string {
	lines := []string{
		renderStatusLine("Coordinator", statusInfo, fmt.Sprintf("%s (compose project %s)", cfg.Cluster.Coordinator, cfg.Cluster.ComposeProject), colorize),
		renderStatusLine("Remote root", statusInfo, cfg.Cluster.RemoteRoot, colorize),
		renderStatusLine("Job timeout", statusInfo, cfg.JobTimeout().String(), colorize),
	}
	metrics := "disabled"
	if cfg.Metrics.TextfilePath != "" {
		metrics = cfg.Metrics.TextfilePath
	}
	notify := "disabled"
	if cfg.Notifications.NtfyTopic != "" {
		notify = "ntfy topic " + cfg.Notifications.NtfyTopic
	}
	return append(lines,
		renderStatusLine("Metrics", statusInfo, metrics, colorize),
		renderStatusLine("Notifications", statusInfo, notify, colorize),
	)
}

func projectPath(cfg *config.Config, value string) string {
	if value == "" || filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(cfg.Paths.ProjectDir, value)
}
