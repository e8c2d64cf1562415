package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"weatherflow/internal/pipeline"
)

const maxDetailWidth = 72

var stageColumns = []column{
	{header: "Stage"},
	{header: "Outcome"},
	{header: "Attempts", align: alignRight},
	{header: "Elapsed", align: alignRight},
	{header: "Detail"},
}

var artifactColumns = []column{
	{header: "Artifact"},
	{header: "Outcome"},
	{header: "Rows", align: alignRight},
	{header: "Bytes", align: alignRight},
	{header: "Path", maxWidth: 60},
}

func renderRun(run *pipeline.Run, colorize bool) string {
	var b strings.Builder
	heading, rule := sectionHeading("Run "+run.ID, colorize)
	b.WriteString(heading + "\n" + rule + "\n")

	rows := make([][]string, 0, len(run.Stages))
	for _, stage := range run.Stages {
		rows = append(rows, []string{
			pipeline.Label(stage.Name),
			string(stage.Outcome),
			strconv.Itoa(stage.Attempts),
			formatElapsed(stage.Elapsed),
			truncate(firstLine(stage.Diagnostic), maxDetailWidth),
		})
	}
	b.WriteString(renderTable(stageColumns, rows))
	b.WriteString("\n")

	if len(run.Artifacts) > 0 {
		rows = rows[:0]
		for _, artifact := range run.Artifacts {
			rows = append(rows, []string{
				artifact.Name,
				string(artifact.Outcome),
				strconv.Itoa(artifact.Rows),
				strconv.FormatInt(artifact.Bytes, 10),
				artifact.LocalPath,
			})
		}
		b.WriteString(renderTable(artifactColumns, rows))
		b.WriteString("\n")
	}

	b.WriteString(renderStatusLine("Outcome", runOutcomeKind(run.Outcome), string(run.Outcome), colorize) + "\n")
	if run.SummaryPath != "" {
		b.WriteString(renderStatusLine("Summary", statusInfo, run.SummaryPath, colorize) + "\n")
	}
	return b.String()
}

func runOutcomeKind(outcome pipeline.RunOutcome) statusKind {
	switch outcome {
	case pipeline.RunSuccess:
		return statusOK
	case pipeline.RunPartialFailure:
		return statusWarn
	default:
		return statusError
	}
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func truncate(text string, width int) string {
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-1]) + "…"
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func describeCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
