package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"weatherflow/internal/cluster"
	"weatherflow/internal/config"
	"weatherflow/internal/jobs"
	"weatherflow/internal/services"
	"weatherflow/internal/testsupport"
)

func setup(t *testing.T) (*config.Config, *testsupport.FakeCluster, *jobs.Runner) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeCluster()
	fake.PutFile(cfg.RemoteInputPath(), testsupport.SampleDataset)
	fake.SetContainerFile(cfg.Jobs.ContainerDir+"/"+cfg.Jobs.TemperatureScript, "# job")
	fake.SetContainerFile(cfg.Jobs.ContainerDir+"/"+cfg.Jobs.PrecipitationScript, "# job")
	return cfg, fake, jobs.New(cfg, cluster.NewAdmin(cfg, fake, nil), nil)
}

func TestRunSuccess(t *testing.T) {
	cfg, fake, runner := setup(t)
	// stale output from an earlier run must be cleared
	fake.PutFile(cfg.RemoteOutputDir("temperature")+"/part-00001", "stale")

	outcome, err := runner.Run(context.Background(), jobs.Spec(cfg, "temperature", cfg.Jobs.TemperatureScript))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := cfg.RemoteOutputDir("temperature") + "/part-00000"
	if len(outcome.OutputFiles) != 1 || outcome.OutputFiles[0] != want {
		t.Fatalf("unexpected output files %v", outcome.OutputFiles)
	}

	var jobCall []string
	for _, call := range fake.Calls() {
		if len(call.Args) > 2 && call.Args[2] == "python3" {
			jobCall = call.Args
			if call.Timeout != cfg.JobTimeout() {
				t.Fatalf("expected job timeout %s, got %s", cfg.JobTimeout(), call.Timeout)
			}
		}
	}
	got := strings.Join(jobCall, " ")
	expected := "exec namenode python3 /opt/weatherflow/jobs/temperature_analysis.py -r hadoop " +
		"--output-dir hdfs:///user/root/weather/output/temperature hdfs:///user/root/weather/input/weather_data.csv"
	if got != expected {
		t.Fatalf("unexpected job invocation\n got: %s\nwant: %s", got, expected)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg, fake, runner := setup(t)
	fake.Jobs["temperature_analysis.py"] = testsupport.JobBehavior{TimeOut: true}

	_, err := runner.Run(context.Background(), jobs.Spec(cfg, "temperature", cfg.Jobs.TemperatureScript))
	var jobErr *jobs.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != jobs.KindTimedOut {
		t.Fatalf("expected timed out JobError, got %v", err)
	}
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatal("expected timeout marker")
	}
	if fake.Count("pkill") != 1 {
		t.Fatalf("expected container process kill, got %d", fake.Count("pkill"))
	}
}

func TestRunFailureCollectsDiagnostics(t *testing.T) {
	cfg, fake, runner := setup(t)
	cfg.Jobs.LogFiles = []string{"/var/log/hadoop/job.log"}
	fake.SetContainerFile("/var/log/hadoop/job.log", "ERROR mapper crashed on line 12\n")
	fake.Jobs["precipitation_analysis.py"] = testsupport.JobBehavior{ExitCode: 1, Stderr: "Traceback: KeyError 'season'"}

	_, err := runner.Run(context.Background(), jobs.Spec(cfg, "precipitation", cfg.Jobs.PrecipitationScript))
	var jobErr *jobs.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != jobs.KindFailed {
		t.Fatalf("expected failed JobError, got %v", err)
	}
	if !strings.Contains(jobErr.Diagnostics, "KeyError 'season'") {
		t.Fatalf("expected stderr in diagnostics, got %q", jobErr.Diagnostics)
	}
	if !strings.Contains(jobErr.Diagnostics, "mapper crashed") {
		t.Fatalf("expected job log tail in diagnostics, got %q", jobErr.Diagnostics)
	}
}

func TestRunEmptyOutput(t *testing.T) {
	cfg, fake, runner := setup(t)
	fake.Jobs["temperature_analysis.py"] = testsupport.JobBehavior{}

	_, err := runner.Run(context.Background(), jobs.Spec(cfg, "temperature", cfg.Jobs.TemperatureScript))
	var jobErr *jobs.JobError
	if !errors.As(err, &jobErr) || jobErr.Kind != jobs.KindEmptyOutput {
		t.Fatalf("expected empty output JobError, got %v", err)
	}
	if services.Classify(err) != services.ClassVerification {
		t.Fatalf("expected verification class, got %s", services.Classify(err))
	}
}
