package storage

import (
	"errors"
	"testing"
	"time"

	"pairshare/models"
	"pairshare/transfer"
)

func TestBeginAndFinishTextTransfer(t *testing.T) {
	store := newTestStore(t)

	job := mustBeginTransfer(t, store, "job-1", transfer.DirectionReceive, models.Payload{}, time.Now())

	pending, err := store.GetTransfer("job-1")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if pending.Status != TransferStatusPending || pending.FinishedAt != nil {
		t.Fatalf("expected pending row without finished_at, got %+v", pending)
	}

	err = store.FinishTransfer(transfer.Outcome{
		Job:        withPayload(job, models.TextPayload("plant-42")),
		Status:     transfer.StatusSuccess,
		FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("FinishTransfer failed: %v", err)
	}

	done, err := store.GetTransfer("job-1")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if done.Status != TransferStatusSuccess {
		t.Fatalf("expected success, got %q", done.Status)
	}
	if done.PayloadType != models.PayloadText || done.PayloadText != "plant-42" {
		t.Fatalf("unexpected payload columns: %+v", done)
	}
	if done.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
	if done.Error != "" {
		t.Fatalf("expected empty error, got %q", done.Error)
	}
}

func TestFinishTransferRecordsFailureAndTimeout(t *testing.T) {
	store := newTestStore(t)

	sendJob := mustBeginTransfer(t, store, "send-1", transfer.DirectionSend, models.TextPayload("x"), time.Now())
	recvJob := mustBeginTransfer(t, store, "recv-1", transfer.DirectionReceive, models.Payload{}, time.Now())

	if err := store.FinishTransfer(transfer.Outcome{
		Job:    sendJob,
		Status: transfer.StatusFailure,
		Err:    errors.New("connection refused"),
	}); err != nil {
		t.Fatalf("FinishTransfer(send) failed: %v", err)
	}
	if err := store.FinishTransfer(transfer.Outcome{
		Job:    recvJob,
		Status: transfer.StatusTimedOut,
		Err:    transfer.ErrTimeout,
	}); err != nil {
		t.Fatalf("FinishTransfer(receive) failed: %v", err)
	}

	failed, err := store.GetTransfer("send-1")
	if err != nil {
		t.Fatalf("GetTransfer(send-1) failed: %v", err)
	}
	if failed.Status != TransferStatusFailed || failed.Error != "connection refused" {
		t.Fatalf("unexpected failed row: %+v", failed)
	}

	timedOut, err := store.GetTransfer("recv-1")
	if err != nil {
		t.Fatalf("GetTransfer(recv-1) failed: %v", err)
	}
	if timedOut.Status != TransferStatusTimedOut {
		t.Fatalf("expected timed_out, got %q", timedOut.Status)
	}
}

func TestFinishTransferWithoutBeginInsertsRow(t *testing.T) {
	store := newTestStore(t)

	job := transfer.Job{
		ID:        "late",
		Direction: transfer.DirectionReceive,
		Payload: models.Payload{
			Type:     models.PayloadFile,
			Name:     "photo.jpg",
			Path:     "/tmp/photo.jpg",
			Size:     2048,
			Checksum: "abc123",
		},
		StartedAt: time.Now(),
	}
	if err := store.FinishTransfer(transfer.Outcome{Job: job, Status: transfer.StatusSuccess}); err != nil {
		t.Fatalf("FinishTransfer failed: %v", err)
	}

	record, err := store.GetTransfer("late")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if record.Status != TransferStatusSuccess {
		t.Fatalf("expected success, got %q", record.Status)
	}
	if record.Filename != "photo.jpg" || record.Filesize != 2048 || record.StoredPath != "/tmp/photo.jpg" {
		t.Fatalf("unexpected file columns: %+v", record)
	}
}

func TestBeginTransferRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)

	if err := store.BeginTransfer(transfer.Job{Direction: transfer.DirectionSend}); err == nil {
		t.Fatal("expected missing ID to fail")
	}
	if err := store.BeginTransfer(transfer.Job{ID: "x", Direction: "sideways"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
}

func TestGetTransferNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetTransfer("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.LatestReceived(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from LatestReceived, got %v", err)
	}
}

func TestListTransfersNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	mustBeginTransfer(t, store, "a", transfer.DirectionSend, models.TextPayload("1"), base)
	mustBeginTransfer(t, store, "b", transfer.DirectionSend, models.TextPayload("2"), base.Add(time.Minute))
	mustBeginTransfer(t, store, "c", transfer.DirectionReceive, models.Payload{}, base.Add(2*time.Minute))

	all, err := store.ListTransfers(0)
	if err != nil {
		t.Fatalf("ListTransfers failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(all))
	}
	if all[0].TransferID != "c" || all[2].TransferID != "a" {
		t.Fatalf("unexpected order: %s, %s, %s", all[0].TransferID, all[1].TransferID, all[2].TransferID)
	}

	limited, err := store.ListTransfers(2)
	if err != nil {
		t.Fatalf("ListTransfers(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(limited))
	}
}

func TestLatestReceivedSkipsSendsAndFailures(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	first := mustBeginTransfer(t, store, "r1", transfer.DirectionReceive, models.Payload{}, now.Add(-3*time.Minute))
	failed := mustBeginTransfer(t, store, "r2", transfer.DirectionReceive, models.Payload{}, now.Add(-2*time.Minute))
	sent := mustBeginTransfer(t, store, "s1", transfer.DirectionSend, models.TextPayload("out"), now.Add(-time.Minute))

	mustFinish(t, store, transfer.Outcome{Job: withPayload(first, models.TextPayload("plant-7")), Status: transfer.StatusSuccess, FinishedAt: now.Add(-3 * time.Minute)})
	mustFinish(t, store, transfer.Outcome{Job: failed, Status: transfer.StatusFailure, Err: errors.New("boom"), FinishedAt: now.Add(-2 * time.Minute)})
	mustFinish(t, store, transfer.Outcome{Job: sent, Status: transfer.StatusSuccess, FinishedAt: now.Add(-time.Minute)})

	latest, err := store.LatestReceived()
	if err != nil {
		t.Fatalf("LatestReceived failed: %v", err)
	}
	if latest.TransferID != "r1" || latest.PayloadText != "plant-7" {
		t.Fatalf("unexpected latest received row: %+v", latest)
	}
}

func TestPruneTransfersKeepsPendingAndRecent(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	old := mustBeginTransfer(t, store, "old", transfer.DirectionSend, models.TextPayload("1"), now.Add(-48*time.Hour))
	mustBeginTransfer(t, store, "old-pending", transfer.DirectionReceive, models.Payload{}, now.Add(-48*time.Hour))
	recent := mustBeginTransfer(t, store, "recent", transfer.DirectionSend, models.TextPayload("2"), now)

	mustFinish(t, store, transfer.Outcome{Job: old, Status: transfer.StatusSuccess})
	mustFinish(t, store, transfer.Outcome{Job: recent, Status: transfer.StatusSuccess})

	removed, err := store.PruneTransfers(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneTransfers failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned row, got %d", removed)
	}
	if _, err := store.GetTransfer("old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old transfer to be pruned, got %v", err)
	}
	for _, id := range []string{"old-pending", "recent"} {
		if _, err := store.GetTransfer(id); err != nil {
			t.Fatalf("expected %q to survive pruning: %v", id, err)
		}
	}
}

func withPayload(job transfer.Job, payload models.Payload) transfer.Job {
	job.Payload = payload
	return job
}

func mustFinish(t *testing.T, store *Store, outcome transfer.Outcome) {
	t.Helper()
	if err := store.FinishTransfer(outcome); err != nil {
		t.Fatalf("finish transfer %q: %v", outcome.ID, err)
	}
}

func TestSetTransferRetentionPrunesImmediately(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	old := mustBeginTransfer(t, store, "week-old", transfer.DirectionSend, models.TextPayload("1"), now.Add(-7*24*time.Hour))
	mustFinish(t, store, transfer.Outcome{Job: old, Status: transfer.StatusSuccess})

	store.SetTransferRetention(0)
	if _, err := store.GetTransfer("week-old"); err != nil {
		t.Fatalf("expected disabled retention to keep the row: %v", err)
	}

	store.SetTransferRetention(24 * time.Hour)
	if _, err := store.GetTransfer("week-old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected row outside the window to be pruned, got %v", err)
	}
}
