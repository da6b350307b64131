package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver (or set REELPIPE_DB_DSN)")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.Table == "" {
		return errors.New("database.table must be set")
	}
	if !tablePattern.MatchString(c.Database.Table) {
		return fmt.Errorf("database.table %q is not a valid identifier", c.Database.Table)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.Stages) == 0 {
		return errors.New("pipeline.stages must list at least one stage")
	}
	seen := make(map[string]struct{}, len(c.Pipeline.Stages))
	for _, stage := range c.Pipeline.Stages {
		if _, dup := seen[stage]; dup {
			return fmt.Errorf("pipeline.stages lists %q twice", stage)
		}
		seen[stage] = struct{}{}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout < 0 {
		return errors.New("workflow.heartbeat_timeout must not be negative")
	}
	if c.Workflow.HeartbeatTimeout > 0 && c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.WorkersPerStage <= 0 {
		return errors.New("workflow.workers_per_stage must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Priority < 0 {
		return errors.New("ingest.priority must not be negative")
	}
	if c.Ingest.MaxFiles <= 0 {
		return errors.New("ingest.max_files must be positive")
	}
	if c.Ingest.MaxSizeGB <= 0 {
		return errors.New("ingest.max_size_gb must be positive")
	}
	switch c.Ingest.MediaType {
	case "movies", "gec":
	default:
		return fmt.Errorf("ingest.media_type must be movies or gec, got %q", c.Ingest.MediaType)
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, settings := range c.Stages {
		if claim := strings.TrimSpace(settings.ClaimStatus); claim != "" {
			switch claim {
			case "pending", "failed":
			default:
				return fmt.Errorf("stages.%s.claim_status must be pending or failed, got %q", name, claim)
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
