package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/pipeline"
	"weatherflow/internal/runstore"
	"weatherflow/internal/services"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show cluster topology and the last recorded run",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			cfg, _, err := ctx.env()
			if err != nil {
				writeSection(out, "Configuration", []string{
					renderStatusLine("Config", statusError, err.Error(), colorize),
				}, colorize)
				return nil
			}
			_, lifecycle, err := ctx.clusterTools()
			if err != nil {
				return nil
			}

			state := lifecycle.Status(cmd.Context())
			writeSection(out, "Cluster", clusterLines(state, colorize), colorize)

			lines, table := lastRunLines(cmd.Context(), cfg, colorize)
			writeSection(out, "Last run", lines, colorize)
			if table != "" {
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}
}

func clusterLines(state cluster.ClusterState, colorize bool) []string {
	if !state.Reachable {
		return []string{renderStatusLine("Topology", statusError, "unreachable: "+firstLine(state.Detail), colorize)}
	}
	if len(state.Services) == 0 {
		return []string{renderStatusLine("Topology", statusWarn, "no services running", colorize)}
	}

	kind, summary := statusOK, "all services running"
	if !state.Running() {
		kind, summary = statusWarn, "some services are not running"
	}
	lines := []string{renderStatusLine("Topology", kind, fmt.Sprintf("%s (%s)", summary, describeCount(len(state.Services), "service")), colorize)}
	for _, svc := range state.Services {
		svcKind := statusOK
		if svc.State != "running" {
			svcKind = statusError
		}
		lines = append(lines, renderStatusLine(svc.Name, svcKind, svc.State, colorize))
	}
	return lines
}

func lastRunLines(ctx context.Context, cfg *config.Config, colorize bool) ([]string, string) {
	// status is read-only; a missing database means nothing has run yet
	dbPath := filepath.Join(cfg.Paths.LogDir, runstore.DatabaseFileName)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return []string{renderStatusLine("History", statusInfo, "no runs recorded", colorize)}, ""
	}

	store, err := runstore.OpenPath(dbPath)
	if err != nil {
		return []string{renderStatusLine("History", statusError, err.Error(), colorize)}, ""
	}
	defer store.Close()

	rec, err := store.Latest(ctx)
	if errors.Is(err, services.ErrNotFound) {
		return []string{renderStatusLine("History", statusInfo, "no runs recorded", colorize)}, ""
	}
	if err != nil {
		return []string{renderStatusLine("History", statusError, err.Error(), colorize)}, ""
	}

	lines := []string{
		renderStatusLine("Run", statusInfo, rec.RunID, colorize),
		renderStatusLine("Command", statusInfo, rec.Command, colorize),
		renderStatusLine("Outcome", runOutcomeKind(pipeline.RunOutcome(rec.Outcome)), rec.Outcome, colorize),
		renderStatusLine("Started", statusInfo, formatTimestamp(rec.StartedAt), colorize),
		renderStatusLine("Finished", statusInfo, formatTimestamp(rec.FinishedAt), colorize),
	}
	for _, artifact := range rec.Artifacts {
		kind, msg := statusOK, fmt.Sprintf("%s (%s)", artifact.LocalPath, describeCount(artifact.Rows, "row"))
		if !artifact.Present {
			kind, msg = statusWarn, "not produced"
		}
		lines = append(lines, renderStatusLine(artifact.Name, kind, msg, colorize))
	}

	rows := make([][]string, 0, len(rec.Stages))
	for _, stage := range rec.Stages {
		rows = append(rows, []string{
			pipeline.Label(stage.Name),
			stage.Outcome,
			strconv.Itoa(stage.Attempts),
			formatElapsed(stage.Elapsed),
		})
	}
	return lines, renderTable(stageColumns[:4], rows)
}
