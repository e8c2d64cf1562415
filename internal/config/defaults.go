package config

const (
	defaultConfigPath          = "~/.config/weatherflow/config.toml"
	defaultProjectDir          = "."
	defaultInputFile           = "data/raw/weather_data.csv"
	defaultOutputDir           = "data/processed"
	defaultLogDir              = "~/.local/share/weatherflow/logs"
	defaultComposeFile         = "docker-compose.yml"
	defaultComposeProject      = "weatherflow"
	defaultCoordinator         = "namenode"
	defaultDockerBinary        = "docker"
	defaultHDFSBinary          = "hdfs"
	defaultRemoteRoot          = "/user/root/weather"
	defaultContainerTmpDir     = "/tmp"
	defaultPermissions         = "777"
	defaultSettleSeconds       = 30
	defaultAdminTimeoutSeconds = 60
	defaultLogTailLines        = 50
	defaultReadinessAttempts   = 30
	defaultReadinessInterval   = 10
	defaultStagingAttempts     = 3
	defaultStagingDelay        = 5
	defaultStagingTimeout      = 300
	defaultMkdirAttempts       = 3
	defaultMkdirDelay          = 2
	defaultJobTimeoutSeconds   = 1800
	defaultInterpreter         = "python3"
	defaultJobRunner           = "hadoop"
	defaultScriptsDir          = "mapreduce"
	defaultContainerJobsDir    = "/opt/weatherflow/jobs"
	defaultTemperatureScript   = "temperature_analysis.py"
	defaultPrecipitationScript = "precipitation_analysis.py"
	defaultCheckAttempts       = 3
	defaultCheckDelaySeconds   = 2
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNtfyTimeout         = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProjectDir: defaultProjectDir,
			InputFile:  defaultInputFile,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Cluster: Cluster{
			ComposeFile:         defaultComposeFile,
			ComposeProject:      defaultComposeProject,
			Coordinator:         defaultCoordinator,
			DockerBinary:        defaultDockerBinary,
			HDFSBinary:          defaultHDFSBinary,
			RemoteRoot:          defaultRemoteRoot,
			ContainerTmpDir:     defaultContainerTmpDir,
			Permissions:         defaultPermissions,
			SettleSeconds:       defaultSettleSeconds,
			AdminTimeoutSeconds: defaultAdminTimeoutSeconds,
			LogTailLines:        defaultLogTailLines,
		},
		Readiness: Readiness{
			MaxAttempts:     defaultReadinessAttempts,
			IntervalSeconds: defaultReadinessInterval,
		},
		Staging: Staging{
			MaxAttempts:           defaultStagingAttempts,
			DelaySeconds:          defaultStagingDelay,
			AttemptTimeoutSeconds: defaultStagingTimeout,
			MkdirAttempts:         defaultMkdirAttempts,
			MkdirDelaySeconds:     defaultMkdirDelay,
		},
		Jobs: Jobs{
			TimeoutSeconds:      defaultJobTimeoutSeconds,
			Interpreter:         defaultInterpreter,
			Runner:              defaultJobRunner,
			ScriptsDir:          defaultScriptsDir,
			ContainerDir:        defaultContainerJobsDir,
			TemperatureScript:   defaultTemperatureScript,
			PrecipitationScript: defaultPrecipitationScript,
		},
		Retrieval: Retrieval{
			CheckAttempts:     defaultCheckAttempts,
			CheckDelaySeconds: defaultCheckDelaySeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
	}
}
