package pipeline

import (
	"path/filepath"

	"weatherflow/internal/config"
)

// Column headers of the assembled artifacts. The jobs emit headerless rows.
const (
	TemperatureHeader   = "city,year,month,month_name,avg_temp_max,avg_temp_min,avg_temp_mean,max_temp_recorded,min_temp_recorded,total_days"
	PrecipitationHeader = "city,year,season,total_seasonal_precipitation,avg_monthly_precipitation,max_monthly_precipitation,total_rainy_days,months_in_season"

	// PartFile is the single output shard each job writes.
	PartFile = "part-00000"
	// SummaryFileName is written next to the artifacts by the report stage.
	SummaryFileName = "run_summary.json"
)

type analysisJob struct {
	stage    string
	name     string
	script   string
	artifact string
	header   string
}

func analysisJobs(cfg *config.Config) []analysisJob {
	return []analysisJob{
		{
			stage:    StageRunTemperature,
			name:     "temperature",
			script:   cfg.Jobs.TemperatureScript,
			artifact: "temperature_results.csv",
			header:   TemperatureHeader,
		},
		{
			stage:    StageRunPrecipitation,
			name:     "precipitation",
			script:   cfg.Jobs.PrecipitationScript,
			artifact: "precipitation_results.csv",
			header:   PrecipitationHeader,
		},
	}
}

func (j analysisJob) localScript(cfg *config.Config) string {
	return filepath.Join(cfg.Jobs.ScriptsDir, j.script)
}

func (j analysisJob) localArtifact(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.OutputDir, j.artifact)
}
