package storage

import (
	"testing"
	"time"

	"pairshare/models"
	"pairshare/transfer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustBeginTransfer(t *testing.T, store *Store, id, direction string, payload models.Payload, startedAt time.Time) transfer.Job {
	t.Helper()

	job := transfer.Job{
		ID:        id,
		Direction: direction,
		Address:   "192.168.49.1:1995",
		Payload:   payload,
		StartedAt: startedAt,
	}
	if err := store.BeginTransfer(job); err != nil {
		t.Fatalf("begin transfer %q: %v", id, err)
	}
	return job
}
