package cluster_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"weatherflow/internal/cluster"
	"weatherflow/internal/logging"
	"weatherflow/internal/services"
	"weatherflow/internal/testsupport"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestAdminCommandForms(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := testsupport.NewScriptedRunner()
	admin := cluster.NewAdmin(cfg, runner, logging.NewNop())

	ctx := context.Background()
	_, _ = admin.Report(ctx)
	_ = admin.Mkdir(ctx, "/user/root/weather/input")
	_ = admin.Put(ctx, "/tmp/weather_data.csv", "/user/root/weather/input/weather_data.csv")
	_, _ = admin.CoordinatorLogs(ctx, 25)

	calls := runner.Calls()
	want := [][]string{
		{"exec", "namenode", "hdfs", "dfsadmin", "-report"},
		{"exec", "namenode", "hdfs", "dfs", "-mkdir", "-p", "/user/root/weather/input"},
		{"exec", "namenode", "hdfs", "dfs", "-put", "-f", "/tmp/weather_data.csv", "/user/root/weather/input/weather_data.csv"},
		{"logs", "--tail", "25", "namenode"},
	}
	if len(calls) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(calls))
	}
	for i, call := range calls {
		if call.Name != "docker" {
			t.Fatalf("call %d: expected docker binary, got %q", i, call.Name)
		}
		if !reflect.DeepEqual(call.Args, want[i]) {
			t.Fatalf("call %d: got %v want %v", i, call.Args, want[i])
		}
		if call.Timeout != cfg.AdminTimeout() {
			t.Fatalf("call %d: expected admin timeout %s, got %s", i, cfg.AdminTimeout(), call.Timeout)
		}
	}
}

func TestAdminExistsTreatsExitOneAsMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := testsupport.NewScriptedRunner(testsupport.Failure(1, ""), testsupport.Failure(255, "connection refused"))
	admin := cluster.NewAdmin(cfg, runner, nil)

	exists, err := admin.Exists(context.Background(), "/missing")
	if err != nil || exists {
		t.Fatalf("expected clean miss, got exists=%v err=%v", exists, err)
	}
	if _, err := admin.Exists(context.Background(), "/missing"); err == nil {
		t.Fatal("expected connection failure to surface as error")
	}
}

func TestIsWriteProtected(t *testing.T) {
	if !cluster.IsWriteProtected("Safe mode is ON\nConfigured Capacity: 0") {
		t.Fatal("expected safe mode report to be write-protected")
	}
	if cluster.IsWriteProtected("Configured Capacity: 1000") {
		t.Fatal("expected normal report to be writable")
	}
}

func TestKillPatternIgnoresNoMatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	admin := cluster.NewAdmin(cfg, testsupport.NewScriptedRunner(testsupport.Failure(1, "")), nil)
	if err := admin.KillPattern(context.Background(), "temperature_analysis.py"); err != nil {
		t.Fatalf("expected no-match to be ignored, got %v", err)
	}
}

func TestNodeRunningParsesInspectOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	admin := cluster.NewAdmin(cfg, testsupport.NewScriptedRunner(testsupport.Output("false\n"), testsupport.Output("garbage")), nil)
	running, err := admin.NodeRunning(context.Background(), "namenode")
	if err != nil || running {
		t.Fatalf("expected not running, got %v %v", running, err)
	}
	if _, err := admin.NodeRunning(context.Background(), "namenode"); err == nil {
		t.Fatal("expected parse error for unexpected output")
	}
}

func TestLifecycleStartIgnoresTeardownFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := testsupport.NewScriptedRunner(
		testsupport.Failure(1, "no such project"),
		testsupport.Output(""),
		testsupport.Output("true\n"),
	)
	admin := cluster.NewAdmin(cfg, runner, nil)
	lifecycle := cluster.NewLifecycle(cfg, runner, admin, nil, cluster.WithSleeper(noSleep))

	if err := lifecycle.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	calls := runner.Calls()
	if len(calls) != 3 {
		t.Fatalf("expected down, up, inspect; got %d calls", len(calls))
	}
	if got := strings.Join(calls[0].Args, " "); !strings.HasSuffix(got, "down --remove-orphans") {
		t.Fatalf("unexpected first call %q", got)
	}
	if got := strings.Join(calls[1].Args, " "); !strings.HasSuffix(got, "up -d") {
		t.Fatalf("unexpected second call %q", got)
	}
}

func TestLifecycleStartFailsWhenCoordinatorDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeCluster()
	fake.CoordinatorDown = true
	fake.Logs = "FATAL namenode: storage directory does not exist"
	admin := cluster.NewAdmin(cfg, fake, nil)
	lifecycle := cluster.NewLifecycle(cfg, fake, admin, nil, cluster.WithSleeper(noSleep))

	err := lifecycle.Start(context.Background())
	if !errors.Is(err, cluster.ErrLifecycle) {
		t.Fatalf("expected lifecycle error, got %v", err)
	}
	if got := services.Classify(err); got != services.ClassConfiguration {
		t.Fatalf("expected configuration class, got %q", got)
	}
	var startErr *cluster.StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected StartError, got %T", err)
	}
	if !strings.Contains(startErr.Logs, "storage directory does not exist") {
		t.Fatalf("expected coordinator logs attached, got %q", startErr.Logs)
	}
}

func TestLifecycleStartComposeUpFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeCluster()
	fake.ComposeUpFails = true
	lifecycle := cluster.NewLifecycle(cfg, fake, cluster.NewAdmin(cfg, fake, nil), nil, cluster.WithSleeper(noSleep))

	err := lifecycle.Start(context.Background())
	if !errors.Is(err, cluster.ErrLifecycle) {
		t.Fatalf("expected lifecycle error, got %v", err)
	}
	if got := services.Classify(err); got != services.ClassConfiguration {
		t.Fatalf("expected configuration class, got %q", got)
	}
	if fake.Count("compose-up") != 1 {
		t.Fatalf("compose up must not be retried, saw %d", fake.Count("compose-up"))
	}
}

func TestLifecycleStatusAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeCluster()
	lifecycle := cluster.NewLifecycle(cfg, fake, cluster.NewAdmin(cfg, fake, nil), nil)

	state := lifecycle.Status(context.Background())
	if !state.Reachable || !state.Running() || len(state.Services) != 3 {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Services[0].Name != "namenode" {
		t.Fatalf("expected namenode first, got %q", state.Services[0].Name)
	}

	if err := lifecycle.Prune(context.Background()); err != nil {
		t.Fatalf("Prune returned error: %v", err)
	}
	if fake.Count("compose-down") != 1 || fake.Count("volume-prune") != 1 {
		t.Fatalf("expected down and volume prune, got down=%d prune=%d", fake.Count("compose-down"), fake.Count("volume-prune"))
	}
}

func TestLifecycleStatusUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := testsupport.NewScriptedRunner(testsupport.Failure(1, "Cannot connect to the Docker daemon"))
	lifecycle := cluster.NewLifecycle(cfg, runner, cluster.NewAdmin(cfg, runner, nil), nil)

	state := lifecycle.Status(context.Background())
	if state.Reachable || state.Running() {
		t.Fatalf("expected unreachable state, got %+v", state)
	}
	if state.Detail == "" {
		t.Fatal("expected detail describing the failure")
	}
}

func TestParseServiceStates(t *testing.T) {
	states := cluster.ParseServiceStates("namenode\trunning\n\ndatanode Exited\n")
	want := []cluster.ServiceState{{Name: "namenode", State: "running"}, {Name: "datanode", State: "exited"}}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("got %+v want %+v", states, want)
	}
}

func TestParseListing(t *testing.T) {
	out := "Found 2 items\n" +
		"-rw-r--r--   1 root supergroup          0 2024-01-01 00:00 /out/temperature/_SUCCESS\n" +
		"-rw-r--r--   1 root supergroup       1204 2024-01-01 00:00 /out/temperature/part-00000\n" +
		"drwxr-xr-x   - root supergroup          0 2024-01-01 00:00 /out/temperature/_logs\n"
	entries := cluster.ParseListing(out)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[1].Path != "/out/temperature/part-00000" || entries[1].Size != 1204 {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
	if !entries[2].IsDir {
		t.Fatal("expected directory entry")
	}
}
