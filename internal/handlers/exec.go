package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
)

// execJob is the document written to the command's stdin.
type execJob struct {
	ID          int64  `json:"id"`
	Stage       string `json:"stage"`
	ExternalKey string `json:"external_key"`
	Filename    string `json:"filename"`
	LocalPath   string `json:"local_path,omitempty"`
	Config      any    `json:"config,omitempty"`
	Metadata    any    `json:"metadata,omitempty"`
}

// execOutcome is the document expected on the command's stdout. All members
// are optional; an empty object means "advance with no field updates".
type execOutcome struct {
	NextStage  string         `json:"next_stage,omitempty"`
	NextStatus string         `json:"next_status,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Exec bridges a stage to an external command. The heavy content models live
// outside this process; the contract is job JSON in, outcome JSON out, exit
// zero.
type Exec struct {
	argv   []string
	logger *slog.Logger
}

// NewExec builds an exec handler from a configured argv.
func NewExec(argv []string, logger *slog.Logger) (*Exec, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, fmt.Errorf("exec handler requires a command")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Exec{
		argv:   argv,
		logger: logger.With(logging.String(logging.FieldComponent, "exec-handler")),
	}, nil
}

// Process runs the command once for the job. Non-zero exit, undecodable
// output, or outcome fields naming unknown columns are handler failures.
func (e *Exec) Process(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
	input, err := encodeExecJob(job)
	if err != nil {
		return stage.Outcome{}, err
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	e.logger.Debug("command finished",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("command", e.argv[0]),
		logging.Duration("elapsed", time.Since(start)),
	)
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return stage.Outcome{}, fmt.Errorf("%s: %w: %s", e.argv[0], runErr, truncate(detail, 512))
		}
		return stage.Outcome{}, fmt.Errorf("%s: %w", e.argv[0], runErr)
	}

	return decodeExecOutcome(stdout.Bytes())
}

func encodeExecJob(job *queue.Job) ([]byte, error) {
	doc := execJob{
		ID:          job.ID,
		Stage:       string(job.Stage),
		ExternalKey: job.ExternalKey,
		Filename:    job.Filename,
		LocalPath:   job.LocalPath,
	}
	if strings.TrimSpace(job.ConfigJSON) != "" {
		doc.Config = json.RawMessage(job.ConfigJSON)
	}
	if strings.TrimSpace(job.MetadataJSON) != "" {
		doc.Metadata = json.RawMessage(job.MetadataJSON)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode job for command: %w", err)
	}
	return encoded, nil
}

func decodeExecOutcome(output []byte) (stage.Outcome, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return stage.Outcome{}, nil
	}
	var doc execOutcome
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return stage.Outcome{}, fmt.Errorf("command output is not an outcome document: %w", err)
	}

	outcome := stage.Outcome{}
	if doc.NextStage != "" {
		parsed, ok := queue.ParseStage(doc.NextStage)
		if !ok {
			return stage.Outcome{}, fmt.Errorf("command requested unknown stage %q", doc.NextStage)
		}
		outcome.NextStage = parsed
	}
	if doc.NextStatus != "" {
		parsed, ok := queue.ParseStatus(doc.NextStatus)
		if !ok {
			return stage.Outcome{}, fmt.Errorf("command requested unknown status %q", doc.NextStatus)
		}
		outcome.NextStatus = parsed
	}
	if len(doc.Fields) > 0 {
		outcome.Fields = make(queue.Fields, len(doc.Fields))
		for column, value := range doc.Fields {
			// JSON-valued columns arrive as objects or arrays; the store
			// takes them as encoded text.
			switch value.(type) {
			case map[string]any, []any:
				encoded, err := json.Marshal(value)
				if err != nil {
					return stage.Outcome{}, fmt.Errorf("re-encode field %q: %w", column, err)
				}
				outcome.Fields[column] = string(encoded)
			default:
				outcome.Fields[column] = value
			}
		}
	}
	return outcome, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so the cut never splits a UTF-8 sequence.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
