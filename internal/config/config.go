package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Database selects and parameterizes the job store backend.
type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver"`
	// DSN is the PostgreSQL connection string. The REELPIPE_DB_DSN
	// environment variable overrides it so credentials can stay out of
	// the config file.
	DSN string `toml:"dsn"`
	// Path is the SQLite database file; defaults to queue.db under the
	// state directory.
	Path string `toml:"path"`
	// Table is the pipeline table name.
	Table string `toml:"table"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	JobsDir     string `toml:"jobs_dir"`
	SourceDir   string `toml:"source_dir"`
	DownloadDir string `toml:"download_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Pipeline fixes the stage ordering for this deployment. The successor of a
// stage is the next entry; the last entry completes jobs.
type Pipeline struct {
	Stages []string `toml:"stages"`
}

// Workflow contains worker timing and intervals, in seconds.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	// HeartbeatTimeout is the stale-job reclaim cutoff; 0 disables the
	// reclaim sweep entirely.
	HeartbeatTimeout int `toml:"heartbeat_timeout"`
	WorkersPerStage  int `toml:"workers_per_stage"`
	// SingleShot makes every worker loop exit after one iteration.
	SingleShot bool `toml:"single_shot"`
}

// Ingest parameterizes inventory scanning and the config blob stamped onto
// every ingested job.
type Ingest struct {
	Priority  int     `toml:"priority"`
	MaxFiles  int     `toml:"max_files"`
	MaxSizeGB float64 `toml:"max_size_gb"`
	Network   string  `toml:"network"`
	MediaType string  `toml:"media_type"`
	Language  string  `toml:"language"`
	Channel   string  `toml:"channel"`
}

// StageSettings overrides per-stage worker behavior.
type StageSettings struct {
	// Exec is the external command bridged to this stage. Empty means the
	// built-in handler, if one exists.
	Exec []string `toml:"exec"`
	// ClaimStatus is the status this stage's workers poll for; defaults
	// to pending. A download worker may poll failed to retry transfers.
	ClaimStatus string `toml:"claim_status"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reelpipe.
//
// Configuration sections by subsystem:
//   - Database: job store backend selection (sqlite or postgres)
//   - Paths: state, log, manifest, and media directories
//   - Pipeline: deployed stage ordering
//   - Workflow: polling, heartbeat, and reclaim intervals
//   - Ingest: inventory scan limits and the per-job config blob
//   - Stages: per-stage exec commands and claim status overrides
//   - Logging: log format and level
type Config struct {
	Database Database                 `toml:"database"`
	Paths    Paths                    `toml:"paths"`
	Pipeline Pipeline                 `toml:"pipeline"`
	Workflow Workflow                 `toml:"workflow"`
	Ingest   Ingest                   `toml:"ingest"`
	Stages   map[string]StageSettings `toml:"stages"`
	Logging  Logging                  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/reelpipe/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("reelpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories daemon and worker processes rely
// on. The source directory is intentionally not created; a missing inventory
// is an operator error surfaced at scan time.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.JobsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.DownloadDir) != "" {
		// Best-effort so config load survives offline media storage.
		_ = os.MkdirAll(c.Paths.DownloadDir, 0o755)
	}
	return nil
}

// DatabasePath resolves the SQLite database file location.
func (c *Config) DatabasePath() string {
	if strings.TrimSpace(c.Database.Path) != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// StageSettings returns the per-stage overrides for a stage name, falling
// back to zero values when the stage has no section.
func (c *Config) StageSettings(stage string) StageSettings {
	if c.Stages == nil {
		return StageSettings{}
	}
	return c.Stages[stage]
}

// ExpandPath resolves ~ and relative segments into an absolute path.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.StateDir,
		&c.Paths.LogDir,
		&c.Paths.JobsDir,
		&c.Paths.SourceDir,
		&c.Paths.DownloadDir,
		&c.Paths.OutputDir,
		&c.Database.Path,
	} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Database.Table = strings.TrimSpace(c.Database.Table)
	if dsn := strings.TrimSpace(os.Getenv("REELPIPE_DB_DSN")); dsn != "" {
		c.Database.DSN = dsn
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
