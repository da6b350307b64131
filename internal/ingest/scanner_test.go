package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelpipe/internal/ingest"
	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
)

func seedInventory(t *testing.T, sourceDir string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(sourceDir, "hindi", "KAN0012345_DIL_CHAHTA_HAI_HD.mp4"), 128)
	testsupport.WriteFile(t, filepath.Join(sourceDir, "hindi", "KAN0012346_SHOLAY_SD.mp4"), 128)
	testsupport.WriteFile(t, filepath.Join(sourceDir, "hindi", "random-download.mp4"), 128)
	testsupport.WriteFile(t, filepath.Join(sourceDir, "hindi", "notes.txt"), 128)
}

func TestScannerPartitionsInventory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.Network = "viacom18"
	cfg.Ingest.Language = "hindi"
	store := testsupport.MustOpenStore(t, cfg)
	seedInventory(t, cfg.Paths.SourceDir)

	scanner := ingest.NewScanner(cfg, store, nil)
	result, err := scanner.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(result.Jobs) != 2 {
		t.Fatalf("enqueue rows = %d, want 2", len(result.Jobs))
	}
	for _, job := range result.Jobs {
		if job.Stage != queue.StageDownload {
			t.Errorf("job stage = %s, want download", job.Stage)
		}
		if job.Priority != cfg.Ingest.Priority {
			t.Errorf("job priority = %d, want %d", job.Priority, cfg.Ingest.Priority)
		}
		if !ingest.CheckFilename(job.Filename) {
			t.Errorf("enqueued filename %q fails validation", job.Filename)
		}
	}
	if len(result.Review) != 1 {
		t.Fatalf("review rows = %d, want 1", len(result.Review))
	}
	if result.Review[0].ExternalKey != "hindi/random-download.mp4" {
		t.Errorf("review key = %q", result.Review[0].ExternalKey)
	}
}

func TestScannerSkipsKnownKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.Network = "viacom18"
	cfg.Ingest.Language = "hindi"
	store := testsupport.MustOpenStore(t, cfg)
	seedInventory(t, cfg.Paths.SourceDir)

	scanner := ingest.NewScanner(cfg, store, nil)
	ctx := context.Background()
	first, err := scanner.Scan(ctx, "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := store.UpsertJobs(ctx, first.Jobs); err != nil {
		t.Fatalf("UpsertJobs: %v", err)
	}

	second, err := scanner.Scan(ctx, "")
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(second.Jobs) != 0 {
		t.Errorf("rescan enqueued %d jobs, want 0", len(second.Jobs))
	}
}

func TestScannerEnforcesFileLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingest.Network = "viacom18"
	cfg.Ingest.Language = "hindi"
	cfg.Ingest.MaxFiles = 1
	store := testsupport.MustOpenStore(t, cfg)

	old := filepath.Join(cfg.Paths.SourceDir, "KAN0000001_OLD_FILM_HD.mp4")
	fresh := filepath.Join(cfg.Paths.SourceDir, "KAN0000002_FRESH_FILM_HD.mp4")
	testsupport.WriteFile(t, old, 64)
	testsupport.WriteFile(t, fresh, 64)
	past := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	scanner := ingest.NewScanner(cfg, store, nil)
	result, err := scanner.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Jobs) != 1 {
		t.Fatalf("enqueue rows = %d, want 1", len(result.Jobs))
	}
	if result.Jobs[0].ExternalKey != "KAN0000002_FRESH_FILM_HD.mp4" {
		t.Errorf("kept %q, want the freshest file", result.Jobs[0].ExternalKey)
	}
}

func TestValidateJobConfig(t *testing.T) {
	valid := `{"download_dir":"/tmp/media","network":"viacom18","media_type":"movies","language":"hindi"}`
	if err := ingest.ValidateJobConfig(valid); err != nil {
		t.Fatalf("valid blob rejected: %v", err)
	}
	invalid := `{"download_dir":"/tmp/media","network":"viacom18","media_type":"radio","language":"hindi"}`
	if err := ingest.ValidateJobConfig(invalid); err == nil {
		t.Fatal("bad media_type accepted")
	}
	if err := ingest.ValidateJobConfig("{"); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}
