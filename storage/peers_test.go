package storage

import (
	"testing"
	"time"

	"pairshare/models"
)

func TestUpsertSeenPeerUpdatesExistingRow(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertSeenPeer(models.PeerDevice{Name: "Pixel", Address: "aa:bb", Status: models.StatusAvailable}); err != nil {
		t.Fatalf("UpsertSeenPeer failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := store.UpsertSeenPeer(models.PeerDevice{Name: "Pixel 8", Address: "aa:bb", Status: models.StatusConnected}); err != nil {
		t.Fatalf("UpsertSeenPeer(update) failed: %v", err)
	}

	peers, err := store.ListSeenPeers()
	if err != nil {
		t.Fatalf("ListSeenPeers failed: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("expected 1 seen peer, got %d", len(peers))
	}
	if peers[0].DeviceName != "Pixel 8" || peers[0].LastStatus != "connected" {
		t.Fatalf("unexpected seen peer: %+v", peers[0])
	}
}

func TestListSeenPeersMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	for _, device := range []models.PeerDevice{
		{Name: "A", Address: "a"},
		{Name: "B", Address: "b"},
	} {
		if err := store.UpsertSeenPeer(device); err != nil {
			t.Fatalf("UpsertSeenPeer(%s) failed: %v", device.Name, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	peers, err := store.ListSeenPeers()
	if err != nil {
		t.Fatalf("ListSeenPeers failed: %v", err)
	}
	if len(peers) != 2 || peers[0].DeviceAddress != "b" {
		t.Fatalf("unexpected order: %+v", peers)
	}
}

func TestUpsertSeenPeerRequiresAddress(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpsertSeenPeer(models.PeerDevice{Name: "nameless"}); err == nil {
		t.Fatal("expected missing address to fail")
	}
}
