package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"reelpipe/internal/logging"
	"reelpipe/internal/queue"
	"reelpipe/internal/testsupport"
	"reelpipe/internal/worker"
)

func TestHeartbeatMonitorReclaimsStaleJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000010", 1)

	ctx := context.Background()
	claimed, err := store.Claim(ctx, queue.StageDownload, queue.StatusPending)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != seeded.ID {
		t.Fatalf("claim returned %+v", claimed)
	}

	// A nanosecond timeout makes the fresh claim immediately stale.
	monitor := worker.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Nanosecond)
	time.Sleep(10 * time.Millisecond)
	if err := monitor.ReclaimStale(ctx, logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}

	job, err := store.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusPending {
		t.Errorf("status = %s, want pending after reclaim", job.Status)
	}
	if job.LastHeartbeat != nil {
		t.Errorf("heartbeat not cleared on reclaim")
	}
}

func TestHeartbeatMonitorDisabledByZeroTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000011", 1)

	ctx := context.Background()
	if _, err := store.Claim(ctx, queue.StageDownload, queue.StatusPending); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	monitor := worker.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, 0)
	if err := monitor.ReclaimStale(ctx, logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}

	job, err := store.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != queue.StatusInProgress {
		t.Errorf("status = %s, want in_progress when sweep disabled", job.Status)
	}
}

func TestHeartbeatLoopRefreshesClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	seeded := testsupport.SeedJob(t, store, queue.StageDownload, "KAN0000012", 1)

	ctx := context.Background()
	claimed, err := store.Claim(ctx, queue.StageDownload, queue.StatusPending)
	if err != nil || claimed == nil {
		t.Fatalf("Claim: %v %v", claimed, err)
	}
	before := *claimed.LastHeartbeat

	monitor := worker.NewHeartbeatMonitor(store, logging.NewNop(), 20*time.Millisecond, time.Hour)
	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go monitor.StartLoop(loopCtx, &wg, seeded.ID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := store.GetByID(ctx, seeded.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job.LastHeartbeat != nil && job.LastHeartbeat.After(before) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never advanced")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()
}
