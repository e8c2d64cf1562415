package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weatherflow/internal/logging"
	"weatherflow/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, "run")
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the cluster and wait until it accepts writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunLock(func() error {
				orch, err := ctx.orchestrator("start")
				if err != nil {
					return err
				}
				run := orch.Start(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderRun(run, shouldColorize(out)))
				if run.Outcome != pipeline.RunSuccess {
					return runFailure(run)
				}
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, lifecycle, err := ctx.clusterTools()
			if err != nil {
				return err
			}
			if err := lifecycle.Stop(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cluster stopped")
			return nil
		},
	}
}

func newCleanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Stop the cluster, remove its volumes, then run the full pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRunLock(func() error {
				_, lifecycle, err := ctx.clusterTools()
				if err != nil {
					return err
				}
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				if err := lifecycle.Stop(cmd.Context()); err != nil {
					logger.Warn("cluster stop failed; continuing with prune",
						logging.Error(err),
						logging.String(logging.FieldEventType, "clean_stop_failed"),
					)
				}
				if err := lifecycle.Prune(cmd.Context()); err != nil {
					return err
				}
				return executeRun(cmd, ctx, "clean")
			})
		},
	}
}

func runPipeline(cmd *cobra.Command, ctx *commandContext, command string) error {
	return ctx.withRunLock(func() error {
		return executeRun(cmd, ctx, command)
	})
}

func executeRun(cmd *cobra.Command, ctx *commandContext, command string) error {
	orch, err := ctx.orchestrator(command)
	if err != nil {
		return err
	}
	run := orch.Run(cmd.Context())
	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderRun(run, shouldColorize(out)))
	if run.Outcome == pipeline.RunFatal {
		return runFailure(run)
	}
	return nil
}

// runFailure describes the first stage that did not succeed.
func runFailure(run *pipeline.Run) error {
	for _, stage := range run.Stages {
		if stage.Outcome == pipeline.OutcomeFailed {
			return fmt.Errorf("%s: %s failed: %s", run.Outcome, pipeline.Label(stage.Name), firstLine(stage.Diagnostic))
		}
	}
	return fmt.Errorf("run finished with outcome %s", run.Outcome)
}
