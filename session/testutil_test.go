package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"pairshare/models"
	"pairshare/p2p/p2ptest"
	"pairshare/transfer"
)

type fakeHistory struct {
	mu       sync.Mutex
	started  []transfer.Job
	finished []transfer.Outcome
	peers    []models.PeerDevice
}

func (h *fakeHistory) BeginTransfer(job transfer.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, job)
	return nil
}

func (h *fakeHistory) FinishTransfer(outcome transfer.Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, outcome)
	return nil
}

func (h *fakeHistory) UpsertSeenPeer(device models.PeerDevice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers = append(h.peers, device)
	return nil
}

func (h *fakeHistory) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.started), len(h.finished), len(h.peers)
}

type testSessionConfig struct {
	port              int
	acceptTimeout     time.Duration
	history           History
	disableAutoListen bool
}

func newTestSession(t *testing.T, manager *p2ptest.Manager, cfg testSessionConfig) *Session {
	t.Helper()
	if cfg.acceptTimeout <= 0 {
		cfg.acceptTimeout = 5 * time.Second
	}
	if cfg.port == 0 {
		cfg.port = freePort(t)
	}

	s, err := New(Options{
		Manager: manager,
		Transfer: transfer.EngineOptions{
			ListenHost:     "127.0.0.1",
			Port:           cfg.port,
			AcceptTimeout:  cfg.acceptTimeout,
			ConnectTimeout: 5 * time.Second,
			ReceiveDir:     t.TempDir(),
		},
		History:           cfg.history,
		DisableAutoListen: cfg.disableAutoListen,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

func waitForEvent(t *testing.T, sub *Subscription, timeout time.Duration, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				t.Fatalf("subscription closed")
			}
			if match(event) {
				return event
			}
		case <-deadline:
			t.Fatalf("event not received before timeout %s", timeout)
			return Event{}
		}
	}
}
