package ingest_test

import (
	"context"
	"testing"
	"time"

	"reelpipe/internal/ingest"
	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
)

func manifestResult() *ingest.ScanResult {
	cfgBlob := `{"download_dir":"/tmp/media","network":"viacom18","media_type":"movies","language":"hindi"}`
	return &ingest.ScanResult{
		Jobs: []queue.NewJob{
			{Stage: queue.StageDownload, Priority: 2, ExternalKey: "hindi/a.mp4", Filename: "Film A_KAN0000001_HD_0.mp4", ConfigJSON: cfgBlob},
			{Stage: queue.StageDownload, Priority: 5, ExternalKey: "hindi/b.mp4", Filename: "Film B_KAN0000002_HD_0.mp4", ConfigJSON: cfgBlob},
		},
		Review: []ingest.ReviewEntry{
			{ExternalKey: "hindi/odd.mp4", Filename: "odd", ConfigJSON: cfgBlob},
		},
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	result := manifestResult()

	path, err := ingest.WriteManifest(dir, result, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	jobs, err := ingest.ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(jobs) != len(result.Jobs) {
		t.Fatalf("read %d jobs, want %d", len(jobs), len(result.Jobs))
	}
	for i, job := range jobs {
		want := result.Jobs[i]
		if job != want {
			t.Errorf("row %d = %+v, want %+v", i, job, want)
		}
	}
}

func TestWatcherEnqueuesNewestManifestOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	if _, err := ingest.WriteManifest(cfg.Paths.JobsDir, manifestResult(), base); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	watcher := ingest.NewWatcher(cfg, store, nil)
	ctx := context.Background()

	processed, err := watcher.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !processed {
		t.Fatal("manifest not processed")
	}

	job, err := store.GetByExternalKey(ctx, "hindi/b.mp4")
	if err != nil {
		t.Fatalf("GetByExternalKey: %v", err)
	}
	if job == nil {
		t.Fatal("manifest row missing from store")
	}
	if job.Priority != 5 || job.Stage != queue.StageDownload || job.Status != queue.StatusPending {
		t.Errorf("job = %s/%s priority %d", job.Stage, job.Status, job.Priority)
	}

	// The same manifest must not be re-ingested.
	processed, err = watcher.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("ProcessNext repeat: %v", err)
	}
	if processed {
		t.Error("already processed manifest was consumed again")
	}
}

func TestWatcherRefreshesPriorityOnNewManifest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := manifestResult()
	if _, err := ingest.WriteManifest(cfg.Paths.JobsDir, first, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	watcher := ingest.NewWatcher(cfg, store, nil)
	if _, err := watcher.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}

	// Advance the first job past download, then re-enqueue with a new
	// priority. Only priority may change.
	seeded, err := store.GetByExternalKey(ctx, "hindi/a.mp4")
	if err != nil || seeded == nil {
		t.Fatalf("GetByExternalKey: %v %v", seeded, err)
	}
	if err := store.Advance(ctx, seeded.ID, queue.StageInference, queue.StatusPending, nil); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	second := manifestResult()
	second.Jobs[0].Priority = 9
	if _, err := ingest.WriteManifest(cfg.Paths.JobsDir, second, time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if _, err := watcher.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext second: %v", err)
	}

	job, err := store.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Priority != 9 {
		t.Errorf("priority = %d, want 9", job.Priority)
	}
	if job.Stage != queue.StageInference {
		t.Errorf("stage reset to %s by re-enqueue", job.Stage)
	}
}
