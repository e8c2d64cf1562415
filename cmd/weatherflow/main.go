package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newCommandContext(), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command tree and maps the result onto a process exit code.
func execute(ctx context.Context, cmdCtx *commandContext, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(cmdCtx)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Error:", err)
	}
	var usage *usageError
	if errors.As(err, &usage) {
		fmt.Fprint(stderr, usage.cmd.UsageString())
	}
	return 1
}
