package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/logs"
	"weatherflow/internal/preflight"
	"weatherflow/internal/procexec"
)

const debugLogLines = 40

type debugSection struct {
	title string
	body  string
}

func newDebugCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "debug",
		Short:       "Dump environment, tool versions, coordinator logs, and the admin report",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			writeSection(out, "Environment", environmentLines(ctx, colorize), colorize)

			cfg, logger, err := ctx.env()
			if err != nil {
				return nil
			}

			checks := preflight.RunAll(cmd.Context(), cfg)
			lines := make([]string, 0, len(checks))
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			writeSection(out, "Preflight", lines, colorize)

			admin, lifecycle, err := ctx.clusterTools()
			if err != nil {
				return nil
			}
			for _, section := range collectDebug(cmd.Context(), cfg, ctx.processRunner(logger), admin, lifecycle) {
				writeSection(out, section.title, []string{section.body}, colorize)
			}
			return nil
		},
	}
}

func environmentLines(ctx *commandContext, colorize bool) []string {
	lines := []string{
		renderStatusLine("Go runtime", statusInfo, fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), colorize),
	}
	if wd, err := os.Getwd(); err == nil {
		lines = append(lines, renderStatusLine("Working dir", statusInfo, wd, colorize))
	}

	_, err := ctx.ensureConfig()
	switch {
	case err != nil:
		lines = append(lines, renderStatusLine("Config", statusError, err.Error(), colorize))
	case !ctx.configExists:
		lines = append(lines, renderStatusLine("Config", statusWarn, ctx.configPath+" (not found, defaults in use)", colorize))
	default:
		lines = append(lines, renderStatusLine("Config", statusOK, ctx.configPath, colorize))
	}
	for _, key := range []string{"WEATHERFLOW_PROJECT_DIR", "WEATHERFLOW_REMOTE_ROOT"} {
		value, set := os.LookupEnv(key)
		if !set {
			value = "(unset)"
		}
		lines = append(lines, renderStatusLine(key, statusInfo, value, colorize))
	}
	return lines
}

// collectDebug gathers the slow diagnostics concurrently. Every collector
// records its own failure as text, so the group never fails.
func collectDebug(ctx context.Context, cfg *config.Config, runner procexec.Runner, admin *cluster.Admin, lifecycle *cluster.Lifecycle) []debugSection {
	sections := []debugSection{
		{title: "Docker version"},
		{title: "Storage version"},
		{title: "Compose services"},
		{title: "Admin report"},
		{title: "Coordinator logs"},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := runner.Run(gctx, procexec.Command{
			Name:    cfg.Cluster.DockerBinary,
			Args:    []string{"version", "--format", "{{.Client.Version}} / {{.Server.Version}}"},
			Timeout: cfg.AdminTimeout(),
		})
		sections[0].body = resultText(string(res.Stdout), err)
		return nil
	})
	g.Go(func() error {
		res, err := admin.Exec(gctx, cfg.AdminTimeout(), cfg.Cluster.HDFSBinary, "version")
		sections[1].body = resultText(string(res.Stdout), err)
		return nil
	})
	g.Go(func() error {
		state := lifecycle.Status(gctx)
		if !state.Reachable {
			sections[2].body = "unreachable: " + state.Detail
			return nil
		}
		var b strings.Builder
		for _, svc := range state.Services {
			fmt.Fprintf(&b, "%s\t%s\n", svc.Name, svc.State)
		}
		sections[2].body = resultText(b.String(), nil)
		return nil
	})
	g.Go(func() error {
		report, err := admin.Report(gctx)
		sections[3].body = resultText(report, err)
		return nil
	})
	g.Go(func() error {
		text, err := admin.CoordinatorLogs(gctx, debugLogLines)
		sections[4].body = resultText(logs.TailText(text, debugLogLines), err)
		return nil
	})
	_ = g.Wait()
	return sections
}

func resultText(text string, err error) string {
	text = strings.TrimRight(text, "\n")
	if err != nil {
		if text == "" {
			return "error: " + err.Error()
		}
		return text + "\nerror: " + err.Error()
	}
	if text == "" {
		return "(no output)"
	}
	return text
}
