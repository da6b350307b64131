package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
)

// mediaExtensions are the inventory file types considered for ingestion.
var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {},
	".mp4": {}, ".mp3": {}, ".wav": {}, ".mov": {}, ".avi": {},
}

// inventoryFile is one candidate found while walking the source root.
type inventoryFile struct {
	key     string
	size    int64
	modTime time.Time
}

// ReviewEntry is a file whose reconstructed name failed validation; it goes
// on the manifest's review sheet for a human to rename.
type ReviewEntry struct {
	ExternalKey string
	Filename    string
	ConfigJSON  string
}

// ScanResult partitions the inventory into enqueueable jobs and review rows.
type ScanResult struct {
	Jobs   []queue.NewJob
	Review []ReviewEntry
}

// Scanner walks a source inventory and turns new media files into manifest
// rows. Files already present in the store (by external key) are skipped so
// repeated scans stay idempotent.
type Scanner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewScanner builds a scanner bound to one store.
func NewScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "ingest-scan")),
	}
}

// Scan lists the inventory, dedupes against the store, and partitions the
// remainder by filename validity. sourceDir overrides the configured source
// root when non-empty.
func (s *Scanner) Scan(ctx context.Context, sourceDir string) (*ScanResult, error) {
	root := sourceDir
	if root == "" {
		root = s.cfg.Paths.SourceDir
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("no source directory configured")
	}

	configJSON, err := s.jobConfigJSON()
	if err != nil {
		return nil, err
	}

	files, err := listInventory(root, s.cfg.Ingest.MaxSizeGB, s.cfg.Ingest.MaxFiles, s.logger)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ExternalKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing keys: %w", err)
	}

	result := &ScanResult{}
	for _, file := range files {
		if _, seen := existing[file.key]; seen {
			continue
		}
		filename := NormalizeFilename(file.key, s.cfg.Ingest.MediaType)
		if !CheckFilename(filename) {
			result.Review = append(result.Review, ReviewEntry{
				ExternalKey: file.key,
				Filename:    filename,
				ConfigJSON:  configJSON,
			})
			continue
		}
		result.Jobs = append(result.Jobs, queue.NewJob{
			Stage:       queue.StageDownload,
			Priority:    s.cfg.Ingest.Priority,
			ExternalKey: file.key,
			Filename:    filename,
			ConfigJSON:  configJSON,
		})
	}

	s.logger.Info("inventory scanned",
		logging.String("source", root),
		logging.Int("candidates", len(files)),
		logging.Int("enqueue", len(result.Jobs)),
		logging.Int("review", len(result.Review)),
	)
	return result, nil
}

// jobConfigJSON builds and validates the config blob stamped onto every job
// from this scan.
func (s *Scanner) jobConfigJSON() (string, error) {
	blob := queue.JobConfig{
		SourcePrefix: s.cfg.Paths.SourceDir,
		DownloadDir:  s.cfg.Paths.DownloadDir,
		Network:      s.cfg.Ingest.Network,
		MediaType:    s.cfg.Ingest.MediaType,
		Language:     s.cfg.Ingest.Language,
		Channel:      s.cfg.Ingest.Channel,
		NumFiles:     s.cfg.Ingest.MaxFiles,
		MaxSizeGB:    s.cfg.Ingest.MaxSizeGB,
	}
	encoded, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("encode job config: %w", err)
	}
	if err := ValidateJobConfig(string(encoded)); err != nil {
		return "", err
	}
	return string(encoded), nil
}

// listInventory walks the root recursively, keeps media files under the size
// cap, and returns the newest limit entries by modification time.
func listInventory(root string, maxSizeGB float64, limit int, logger *slog.Logger) ([]inventoryFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %q is not a directory", root)
	}

	maxBytes := int64(maxSizeGB * 1024 * 1024 * 1024)
	var files []inventoryFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := mediaExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if maxBytes > 0 && fi.Size() > maxBytes {
			logger.Debug("skipping oversized file",
				logging.String("path", path),
				logging.Int64("size", fi.Size()),
			)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, inventoryFile{
			key:     filepath.ToSlash(rel),
			size:    fi.Size(),
			modTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].key < files[j].key
		}
		return files[i].modTime.After(files[j].modTime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}
