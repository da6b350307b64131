package main

import (
	"context"
	"strings"
	"testing"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
)

func seedQueue(t *testing.T, configPath string) {
	t.Helper()
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	jobs := []queue.NewJob{
		{Stage: queue.StageDownload, Priority: 2, ExternalKey: "hindi/a.mp4", Filename: "Film A_KAN0000001_HD_0.mp4", ConfigJSON: "{}"},
		{Stage: queue.StageDownload, Priority: 5, ExternalKey: "hindi/b.mp4", Filename: "Film B_KAN0000002_HD_0.mp4", ConfigJSON: "{}"},
	}
	if _, err := store.UpsertJobs(context.Background(), jobs); err != nil {
		t.Fatalf("seed jobs: %v", err)
	}
	failed, err := store.GetByExternalKey(context.Background(), "hindi/a.mp4")
	if err != nil || failed == nil {
		t.Fatalf("fetch seeded job: %v", err)
	}
	if err := store.MarkFailed(context.Background(), failed.ID, nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
}

func TestQueueStatusRendersStageCounts(t *testing.T) {
	configPath := writeTestConfig(t)
	seedQueue(t, configPath)

	out, err := runCommand(t, "--config", configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status failed: %v", err)
	}
	for _, want := range []string{"download", "pending", "failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestQueueListFiltersByStatus(t *testing.T) {
	configPath := writeTestConfig(t)
	seedQueue(t, configPath)

	out, err := runCommand(t, "--config", configPath, "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if !strings.Contains(out, "hindi/a.mp4") {
		t.Errorf("failed job missing from list:\n%s", out)
	}
	if strings.Contains(out, "hindi/b.mp4") {
		t.Errorf("pending job leaked into failed filter:\n%s", out)
	}
}

func TestQueueRetryResetsFailedJobs(t *testing.T) {
	configPath := writeTestConfig(t)
	seedQueue(t, configPath)

	out, err := runCommand(t, "--config", configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry failed: %v", err)
	}
	if !strings.Contains(out, "Retried 1 job(s)") {
		t.Errorf("unexpected retry output: %s", out)
	}

	out, err = runCommand(t, "--config", configPath, "queue", "list", "--status", "failed")
	if err != nil {
		t.Fatalf("queue list failed: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Errorf("failed jobs remain after retry:\n%s", out)
	}
}

func TestQueueClearRequiresSelector(t *testing.T) {
	configPath := writeTestConfig(t)
	if _, err := runCommand(t, "--config", configPath, "queue", "clear"); err == nil {
		t.Fatal("expected error without --done/--failed")
	}
}

func TestMigrateCreatesTable(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCommand(t, "--config", configPath, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "pipeline_jobs") || !strings.Contains(out, "sqlite") {
		t.Errorf("unexpected migrate output: %s", out)
	}
}
