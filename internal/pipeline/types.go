package pipeline

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage names, in execution order.
const (
	StageLifecycleStart   = "lifecycle-start"
	StageReadiness        = "readiness"
	StageInput            = "stage-input"
	StageRunTemperature   = "run-temperature"
	StageRunPrecipitation = "run-precipitation"
	StageRetrieveOutputs  = "retrieve-outputs"
	StageReport           = "report"
)

// StageOrder lists every stage a full run records.
var StageOrder = []string{
	StageLifecycleStart,
	StageReadiness,
	StageInput,
	StageRunTemperature,
	StageRunPrecipitation,
	StageRetrieveOutputs,
	StageReport,
}

// Outcome is the result of one stage or artifact.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetried Outcome = "retried"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Succeeded reports whether the outcome counts as success.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeRetried
}

// RunOutcome is the overall result of a run.
type RunOutcome string

const (
	RunSuccess        RunOutcome = "success"
	RunPartialFailure RunOutcome = "partial_failure"
	RunFatal          RunOutcome = "fatal"
)

// StageResult is appended once per stage and never modified afterwards.
type StageResult struct {
	Name       string
	Outcome    Outcome
	Attempts   int
	Elapsed    time.Duration
	Diagnostic string
	ErrorClass string
}

// ArtifactOutcome records what happened to one job output.
type ArtifactOutcome struct {
	Name      string
	Outcome   Outcome
	LocalPath string
	Rows      int
	Bytes     int64
	SHA256    string
	Detail    string
}

// Run is one pipeline execution.
type Run struct {
	ID          string
	Command     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Stages      []StageResult
	Artifacts   []ArtifactOutcome
	Outcome     RunOutcome
	Aborted     bool
	SummaryPath string
}

// Stage returns the recorded result for name.
func (r *Run) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Artifact returns the recorded outcome for the named artifact.
func (r *Run) Artifact(name string) (ArtifactOutcome, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactOutcome{}, false
}

func (r *Run) record(result StageResult) {
	r.Stages = append(r.Stages, result)
}

// computeOutcome derives the overall outcome from the recorded stages.
func (r *Run) computeOutcome() RunOutcome {
	if r.Aborted {
		return RunFatal
	}
	for _, s := range r.Stages {
		if !s.Outcome.Succeeded() {
			return RunPartialFailure
		}
	}
	return RunSuccess
}

// Label renders a stage name for humans, e.g. "Run Temperature".
func Label(stage string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(stage, "-", " "))
}
