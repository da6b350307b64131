package config

const (
	defaultStateDir           = "~/.local/share/reelpipe/state"
	defaultLogDir             = "~/.local/share/reelpipe/logs"
	defaultJobsDir            = "~/.local/share/reelpipe/jobs"
	defaultDownloadDir        = "~/reelpipe/media_files"
	defaultOutputDir          = "~/reelpipe/raw_json_outputs"
	defaultDatabaseDriver     = "sqlite"
	defaultPipelineTable      = "pipeline_jobs"
	defaultQueuePollInterval  = 180
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 600
	defaultWorkersPerStage    = 2
	defaultIngestPriority     = 2
	defaultIngestMaxFiles     = 100
	defaultIngestMaxSizeGB    = 4.0
	defaultLogFormat          = ""
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Database: Database{
			Driver: defaultDatabaseDriver,
			Table:  defaultPipelineTable,
		},
		Paths: Paths{
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
			JobsDir:     defaultJobsDir,
			DownloadDir: defaultDownloadDir,
			OutputDir:   defaultOutputDir,
		},
		Pipeline: Pipeline{
			Stages: []string{
				"download",
				"character_detection",
				"inference",
				"db_insertion",
				"shot_description",
				"scene_detection",
				"scene_description",
			},
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			WorkersPerStage:    defaultWorkersPerStage,
		},
		Ingest: Ingest{
			Priority:  defaultIngestPriority,
			MaxFiles:  defaultIngestMaxFiles,
			MaxSizeGB: defaultIngestMaxSizeGB,
			MediaType: "movies",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
