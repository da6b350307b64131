package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
)

// Watcher tails the jobs directory and feeds each new manifest's enqueue
// sheet into the store. Only the newest manifest is considered; scans are
// cumulative, so intermediate manifests carry nothing the newest one lacks.
type Watcher struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewWatcher builds a watcher bound to one store.
func NewWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "ingest-watch")),
	}
}

// Run polls until cancelled. With once set it processes at most one new
// manifest and returns. A lock file keeps concurrent watchers from racing on
// the processed marker.
func (w *Watcher) Run(ctx context.Context, once bool) error {
	if err := os.MkdirAll(w.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	lock := flock.New(filepath.Join(w.cfg.Paths.StateDir, "reelpipe-watch.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire watch lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another watcher already holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	interval := time.Duration(w.cfg.Workflow.QueuePollInterval) * time.Second
	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if once {
			return nil
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ProcessNext ingests the newest unprocessed manifest, if any. It reports
// whether a manifest was consumed.
func (w *Watcher) ProcessNext(ctx context.Context) (bool, error) {
	marker, err := w.readMarker()
	if err != nil {
		return false, err
	}
	name, err := newestManifest(w.cfg.Paths.JobsDir, marker)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if name == "" {
		return false, nil
	}

	path := filepath.Join(w.cfg.Paths.JobsDir, name)
	jobs, err := ReadManifest(path)
	if err != nil {
		return false, err
	}

	affected, err := w.store.UpsertJobs(ctx, jobs)
	if err != nil {
		return false, fmt.Errorf("enqueue manifest %s: %w", name, err)
	}
	if err := w.writeMarker(name); err != nil {
		return false, err
	}

	w.logger.Info("manifest enqueued",
		logging.String("manifest", name),
		logging.Int("jobs", len(jobs)),
		logging.Int64("rows_affected", affected),
	)
	return true, nil
}

func (w *Watcher) markerPath() string {
	return filepath.Join(w.cfg.Paths.StateDir, "last_manifest")
}

func (w *Watcher) readMarker() (string, error) {
	data, err := os.ReadFile(w.markerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read manifest marker: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (w *Watcher) writeMarker(name string) error {
	if err := os.WriteFile(w.markerPath(), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("write manifest marker: %w", err)
	}
	return nil
}
