package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"weatherflow/internal/config"
	"weatherflow/internal/procexec"
	"weatherflow/internal/testsupport"
)

type cliTestEnv struct {
	cfg  *config.Config
	fake *testsupport.FakeCluster
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Logging.Level = "error"
	return &cliTestEnv{cfg: cfg, fake: testsupport.NewFakeCluster()}
}

func (env *cliTestEnv) commandContext() *commandContext {
	ctx := newCommandContext()
	ctx.loadConfig = func(string) (*config.Config, string, bool, error) {
		cfgCopy := *env.cfg
		return &cfgCopy, "/tmp/weatherflow-test.toml", true, nil
	}
	ctx.newRunner = func(*slog.Logger) procexec.Runner { return env.fake }
	ctx.sleep = func(context.Context, time.Duration) error { return nil }
	return ctx
}

func runCLI(t *testing.T, cmdCtx *commandContext, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cmdCtx, args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
