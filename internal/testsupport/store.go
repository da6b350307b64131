package testsupport

import (
	"context"
	"testing"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedJob inserts one job with the given key and priority and returns it.
func SeedJob(t testing.TB, store *queue.Store, stage queue.Stage, key string, priority int) *queue.Job {
	t.Helper()

	ctx := context.Background()
	if _, err := store.UpsertJobs(ctx, []queue.NewJob{{
		Stage:       stage,
		Priority:    priority,
		ExternalKey: key,
		Filename:    key + ".mp4",
		ConfigJSON:  `{"bucket_name":"test-bucket","download_dir":"/tmp","network":"TEST","media_type":"movies","language":"eng"}`,
	}}); err != nil {
		t.Fatalf("store.UpsertJobs: %v", err)
	}
	job, err := store.GetByExternalKey(ctx, key)
	if err != nil {
		t.Fatalf("store.GetByExternalKey: %v", err)
	}
	if job == nil {
		t.Fatalf("seeded job %q not found", key)
	}
	return job
}
