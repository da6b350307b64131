package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"reelpipe/internal/config"
	"reelpipe/internal/queue"
	"reelpipe/internal/stage"
	"reelpipe/internal/testsupport"
	"reelpipe/internal/worker"
)

func TestRunnerAdvancesToSuccessorStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000001", 5)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		if job.ID != seeded.ID {
			t.Errorf("claimed job %d, want %d", job.ID, seeded.ID)
		}
		return stage.Outcome{Fields: queue.Fields{"local_path": "/tmp/KAN0000001.mp4"}}, nil
	})

	runner, err := worker.New(cfg, store, queue.StageDownload, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Stage != queue.StageCharacterDetection {
		t.Errorf("stage = %s, want %s", job.Stage, queue.StageCharacterDetection)
	}
	if job.Status != queue.StatusPending {
		t.Errorf("status = %s, want %s", job.Status, queue.StatusPending)
	}
	if job.LocalPath != "/tmp/KAN0000001.mp4" {
		t.Errorf("local_path = %q", job.LocalPath)
	}
	if _, ok := job.StageTimes[queue.StageDownload]; !ok {
		t.Errorf("download_time not recorded")
	}
	if job.LastHeartbeat != nil {
		t.Errorf("heartbeat not cleared after transition")
	}
}

func TestRunnerMarksDoneAtLastStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageSceneDescription, "KAN0000002", 1)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageSceneDescription, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusDone {
		t.Errorf("status = %s, want done", job.Status)
	}
	if job.Stage != queue.StageSceneDescription {
		t.Errorf("stage moved to %s on completion", job.Stage)
	}
}

func TestRunnerRecordsHandlerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageInference, "KAN0000003", 1)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{}, errors.New("gpu node unreachable")
	})
	runner, err := worker.New(cfg, store, queue.StageInference, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Stage != queue.StageInference {
		t.Errorf("stage changed on failure: %s", job.Stage)
	}

	var diag map[string]string
	if err := json.Unmarshal([]byte(job.MetadataJSON), &diag); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if !strings.Contains(diag["error"], "gpu node unreachable") {
		t.Errorf("diagnostic error = %q", diag["error"])
	}
	if diag["failed_stage"] != string(queue.StageInference) {
		t.Errorf("failed_stage = %q", diag["failed_stage"])
	}
}

func TestRunnerHonorsExplicitOutcomeTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000004", 1)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		// Skip ahead to inference, bypassing character detection.
		return stage.Outcome{NextStage: queue.StageInference}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageDownload, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Stage != queue.StageInference {
		t.Errorf("stage = %s, want inference", job.Stage)
	}
}

func TestRunnerRejectsBackwardOutcomeTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageInference, "KAN0000007", 1)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{NextStage: queue.StageDownload}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageInference, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.Stage != queue.StageInference {
		t.Errorf("job moved to %s on rejected outcome", job.Stage)
	}

	var diag map[string]string
	if err := json.Unmarshal([]byte(job.MetadataJSON), &diag); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if !strings.Contains(diag["error"], "does not follow") {
		t.Errorf("diagnostic error = %q", diag["error"])
	}
}

func TestRunnerRejectsSameStageOutcomeTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageShotDescription, "KAN0000008", 1)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{NextStage: queue.StageShotDescription}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageShotDescription, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}

func TestRunnerClaimsConfiguredStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageSettings("download", config.StageSettings{ClaimStatus: "failed"}))
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000005", 1)
	if err := store.MarkFailed(context.Background(), seeded.ID, nil); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageDownload, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("runner.Run: %v", err)
	}

	job, err := store.GetByID(context.Background(), seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Stage != queue.StageCharacterDetection || job.Status != queue.StatusPending {
		t.Errorf("job at %s/%s, want character_detection/pending", job.Stage, job.Status)
	}
}

func TestRunnerSingleShotExitsOnEmptyQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SingleShot = true
	store := testsupport.MustOpenStore(t, cfg)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		t.Error("handler invoked on empty queue")
		return stage.Outcome{}, nil
	})
	runner, err := worker.New(cfg, store, queue.StageDownload, handler, nil)
	if err != nil {
		t.Fatalf("worker.New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runner.Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not exit on empty queue")
	}
}

func TestRunnerRejectsStageOutsidePipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStages("download", "inference"))
	store := testsupport.MustOpenStore(t, cfg)

	handler := stage.Func(func(ctx context.Context, job *queue.Job) (stage.Outcome, error) {
		return stage.Outcome{}, nil
	})
	if _, err := worker.New(cfg, store, queue.StageSceneDetection, handler, nil); err == nil {
		t.Fatal("expected error for stage missing from pipeline")
	}
}
