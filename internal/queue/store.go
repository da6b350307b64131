package queue

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"reelpipe/internal/config"
)

// Store manages pipeline job persistence. It is the single source of truth
// for job state; every mutation is a single-statement transaction so a crash
// never leaves a row half-written.
type Store struct {
	db     *sql.DB
	driver Driver
	table  string
}

// Open connects to the configured backend, applies connection settings, and
// ensures the pipeline table exists.
func Open(cfg *config.Config) (*Store, error) {
	driver, ok := ParseDriver(cfg.Database.Driver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	table := cfg.Database.Table
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, fmt.Errorf("ensure directories: %w", err)
		}
		db, err = sql.Open("sqlite", cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.Exec(pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres pool: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
	}

	store := &Store{db: db, driver: driver, table: table}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports which backend the store runs against.
func (s *Store) Driver() Driver {
	return s.driver
}

// Table reports the pipeline table name the store operates on.
func (s *Store) Table() string {
	return s.table
}

const jobColumns = "id, stage, priority, external_key, filename, config, metadata, local_path, processed_output, " +
	"download_time, character_detection_time, inference_time, db_insertion_time, shot_description_time, " +
	"scene_detection_time, scene_description_time, infer_logs, status, created_at, updated_at, last_heartbeat"

// timeColumnOrder matches the *_time column positions in jobColumns.
var timeColumnOrder = []Stage{
	StageDownload,
	StageCharacterDetection,
	StageInference,
	StageDBInsertion,
	StageShotDescription,
	StageSceneDetection,
	StageSceneDescription,
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		stageStr        string
		priority        int
		externalKey     sql.NullString
		filename        string
		configRaw       any
		metadataRaw     any
		localPath       sql.NullString
		processedOutput sql.NullString
		times           = make([]sql.NullFloat64, len(timeColumnOrder))
		inferLogsRaw    any
		statusStr       string
		createdRaw      any
		updatedRaw      any
		heartbeatRaw    any
	)

	dest := []any{
		&id,
		&stageStr,
		&priority,
		&externalKey,
		&filename,
		&configRaw,
		&metadataRaw,
		&localPath,
		&processedOutput,
	}
	for i := range times {
		dest = append(dest, &times[i])
	}
	dest = append(dest, &inferLogsRaw, &statusStr, &createdRaw, &updatedRaw, &heartbeatRaw)

	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Stage:           Stage(stageStr),
		Priority:        priority,
		ExternalKey:     externalKey.String,
		Filename:        filename,
		ConfigJSON:      stringAny(configRaw),
		MetadataJSON:    stringAny(metadataRaw),
		LocalPath:       localPath.String,
		ProcessedOutput: processedOutput.String,
		InferLogsJSON:   stringAny(inferLogsRaw),
		Status:          Status(statusStr),
	}
	for i, value := range times {
		if value.Valid {
			if job.StageTimes == nil {
				job.StageTimes = make(map[Stage]float64, len(times))
			}
			job.StageTimes[timeColumnOrder[i]] = value.Float64
		}
	}
	if created, ok := parseTimeAny(createdRaw); ok {
		job.CreatedAt = created
	}
	if updated, ok := parseTimeAny(updatedRaw); ok {
		job.UpdatedAt = updated
	}
	if heartbeat, ok := parseTimeAny(heartbeatRaw); ok {
		job.LastHeartbeat = &heartbeat
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
