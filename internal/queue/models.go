package queue

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Stage identifies one step of the processing pipeline.
type Stage string

const (
	StageDownload           Stage = "download"
	StageCharacterDetection Stage = "character_detection"
	StageInference          Stage = "inference"
	StageDBInsertion        Stage = "db_insertion"
	StageShotDescription    Stage = "shot_description"
	StageSceneDetection     Stage = "scene_detection"
	StageSceneDescription   Stage = "scene_description"
)

// Status represents the lifecycle of a job within its current stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStages = []Stage{
	StageDownload,
	StageCharacterDetection,
	StageInference,
	StageDBInsertion,
	StageShotDescription,
	StageSceneDetection,
	StageSceneDescription,
}

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusDone,
	StatusFailed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStages returns the fixed set of known stages in default pipeline order.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// TimeColumn returns the elapsed-time column owned by a stage.
func TimeColumn(stage Stage) string {
	return string(stage) + "_time"
}

// Job is one unit of work persisted in the pipeline table.
type Job struct {
	ID              int64
	Stage           Stage
	Priority        int
	ExternalKey     string
	Filename        string
	ConfigJSON      string
	MetadataJSON    string
	LocalPath       string
	ProcessedOutput string
	StageTimes      map[Stage]float64
	InferLogsJSON   string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   *time.Time
}

// Config decodes the job's opaque configuration blob.
func (j *Job) Config() (JobConfig, error) {
	var cfg JobConfig
	if strings.TrimSpace(j.ConfigJSON) == "" {
		return cfg, fmt.Errorf("job %d has no config", j.ID)
	}
	if err := json.Unmarshal([]byte(j.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode job config: %w", err)
	}
	return cfg, nil
}

// IsTerminal reports whether the job has reached its final status.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusDone
}

// JobConfig describes the source/destination conventions attached to a job
// at ingestion time. The blob travels with the job through every stage.
type JobConfig struct {
	BucketName   string  `json:"bucket_name,omitempty"`
	SourcePrefix string  `json:"source_prefix,omitempty"`
	DownloadDir  string  `json:"download_dir"`
	Network      string  `json:"network"`
	MediaType    string  `json:"media_type"`
	Language     string  `json:"language"`
	Channel      string  `json:"channel,omitempty"`
	NumFiles     int     `json:"num_files,omitempty"`
	MaxSizeGB    float64 `json:"max_size_gb,omitempty"`
}

// DestinationDir resolves the per-job media directory beneath the download root.
func (c JobConfig) DestinationDir() string {
	parts := []string{c.DownloadDir, c.Network, c.MediaType, c.Language}
	if c.Channel != "" {
		parts = append(parts, c.Channel)
	}
	return filepath.Join(parts...)
}

// NewJob describes a row submitted through batch ingestion.
type NewJob struct {
	Stage       Stage
	Priority    int
	ExternalKey string
	Filename    string
	ConfigJSON  string
}
