package transfer

import (
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"pairshare/models"
)

func newTestEngine(t *testing.T, port int, opts EngineOptions) *Engine {
	t.Helper()
	opts.ListenHost = "127.0.0.1"
	opts.Port = port
	engine := NewEngine(opts)
	t.Cleanup(func() {
		_ = engine.Close()
	})
	return engine
}

func freePort(t *testing.T) int {
	t.Helper()
	_, port, err := net.SplitHostPort(freeAddress(t))
	if err != nil {
		t.Fatalf("split address: %v", err)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return n
}

func waitOutcome(t *testing.T, outcomes <-chan Outcome, timeout time.Duration) Outcome {
	t.Helper()
	select {
	case outcome := <-outcomes:
		return outcome
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for outcome")
		return Outcome{}
	}
}

func TestEngineRoundTrip(t *testing.T) {
	port := freePort(t)
	var started atomic.Int32
	receiver := newTestEngine(t, port, EngineOptions{
		AcceptTimeout: 5 * time.Second,
		OnStart: func(Job) {
			started.Add(1)
		},
	})
	sender := newTestEngine(t, port, EngineOptions{ConnectTimeout: 5 * time.Second})

	received := make(chan Outcome, 2)
	job, ok := receiver.StartListener(func(outcome Outcome) {
		received <- outcome
	})
	if !ok {
		t.Fatalf("expected listener to start")
	}
	if job.Direction != DirectionReceive || job.ID == "" {
		t.Fatalf("unexpected job %+v", job)
	}

	sent := make(chan Outcome, 1)
	if _, ok := sender.Send("127.0.0.1", models.TextPayload("plant-42"), func(outcome Outcome) {
		sent <- outcome
	}); !ok {
		t.Fatalf("expected send to start")
	}

	if outcome := waitOutcome(t, sent, 5*time.Second); outcome.Status != StatusSuccess {
		t.Fatalf("expected send success, got %s: %v", outcome.Status, outcome.Err)
	}
	outcome := waitOutcome(t, received, 5*time.Second)
	if outcome.Status != StatusSuccess || outcome.Payload.Text != "plant-42" {
		t.Fatalf("unexpected receive outcome %+v", outcome)
	}
	if started.Load() != 1 {
		t.Fatalf("expected one OnStart call, got %d", started.Load())
	}

	select {
	case extra := <-received:
		t.Fatalf("unexpected second outcome %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEngineListenerTimeoutReleasesPort(t *testing.T) {
	port := freePort(t)
	engine := newTestEngine(t, port, EngineOptions{AcceptTimeout: 150 * time.Millisecond})

	outcomes := make(chan Outcome, 1)
	if _, ok := engine.StartListener(func(outcome Outcome) {
		outcomes <- outcome
	}); !ok {
		t.Fatalf("expected listener to start")
	}

	outcome := waitOutcome(t, outcomes, 3*time.Second)
	if outcome.Status != StatusTimedOut {
		t.Fatalf("expected timed out, got %s: %v", outcome.Status, outcome.Err)
	}
	if outcome.Message() != "timed out" {
		t.Fatalf("unexpected message %q", outcome.Message())
	}

	waitForCondition(t, time.Second, func() bool {
		return !engine.Busy(DirectionReceive)
	})
	rebound, err := net.Listen("tcp", engine.ListenAddress())
	if err != nil {
		t.Fatalf("port was not released: %v", err)
	}
	_ = rebound.Close()
}

func TestEngineSecondListenerIsNoop(t *testing.T) {
	engine := newTestEngine(t, freePort(t), EngineOptions{AcceptTimeout: 5 * time.Second})

	if _, ok := engine.StartListener(nil); !ok {
		t.Fatalf("expected first listener to start")
	}
	if _, ok := engine.StartListener(nil); ok {
		t.Fatalf("expected second listener to be dropped")
	}
}

func TestEngineSecondSendIsNoop(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	var accepted atomic.Int32
	release := make(chan struct{})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			go func() {
				defer conn.Close()
				<-release
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()

	_, portText, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portText)
	engine := newTestEngine(t, port, EngineOptions{ConnectTimeout: 5 * time.Second})

	// Large enough to fill socket buffers while the peer is not reading.
	sourcePath := createFixtureFile(t, t.TempDir(), "large.bin", 32*1024*1024)
	outcomes := make(chan Outcome, 2)
	if _, ok := engine.Send("127.0.0.1", models.FilePayload(sourcePath), func(outcome Outcome) {
		outcomes <- outcome
	}); !ok {
		t.Fatalf("expected first send to start")
	}
	waitForCondition(t, 3*time.Second, func() bool {
		return accepted.Load() == 1
	})

	if _, ok := engine.Send("127.0.0.1", models.TextPayload("plant-42"), nil); ok {
		t.Fatalf("expected second send to be dropped")
	}

	close(release)
	if outcome := waitOutcome(t, outcomes, 10*time.Second); outcome.Status != StatusSuccess {
		t.Fatalf("expected send success, got %s: %v", outcome.Status, outcome.Err)
	}
	if got := accepted.Load(); got != 1 {
		t.Fatalf("expected one connection, got %d", got)
	}
}

func TestEngineCloseCancelsListener(t *testing.T) {
	engine := NewEngine(EngineOptions{ListenHost: "127.0.0.1", Port: freePort(t), AcceptTimeout: 10 * time.Second})

	outcomes := make(chan Outcome, 1)
	if _, ok := engine.StartListener(func(outcome Outcome) {
		outcomes <- outcome
	}); !ok {
		t.Fatalf("expected listener to start")
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	outcome := waitOutcome(t, outcomes, time.Second)
	if outcome.Status != StatusFailure {
		t.Fatalf("expected failure after close, got %s", outcome.Status)
	}
	if _, ok := engine.StartListener(nil); ok {
		t.Fatalf("expected closed engine to reject new jobs")
	}
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
	t.Fatalf("condition not met within %s", timeout)
}

func TestEngineSilentPeerReportsTimedOut(t *testing.T) {
	port := freePort(t)
	engine := newTestEngine(t, port, EngineOptions{AcceptTimeout: 200 * time.Millisecond})

	outcomes := make(chan Outcome, 1)
	if _, ok := engine.StartListener(func(outcome Outcome) {
		outcomes <- outcome
	}); !ok {
		t.Fatalf("expected listener to start")
	}

	conn, err := net.Dial("tcp", engine.ListenAddress())
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	defer conn.Close()

	outcome := waitOutcome(t, outcomes, 3*time.Second)
	if outcome.Status != StatusTimedOut {
		t.Fatalf("expected timed out, got %s: %v", outcome.Status, outcome.Err)
	}
}

func TestEngineTruncatedFrameReportsFailure(t *testing.T) {
	port := freePort(t)
	engine := newTestEngine(t, port, EngineOptions{AcceptTimeout: 5 * time.Second})

	outcomes := make(chan Outcome, 1)
	if _, ok := engine.StartListener(func(outcome Outcome) {
		outcomes <- outcome
	}); !ok {
		t.Fatalf("expected listener to start")
	}

	conn, err := net.Dial("tcp", engine.ListenAddress())
	if err != nil {
		t.Fatalf("dial listener: %v", err)
	}
	if _, err := conn.Write([]byte{0, 0, 0, 50, '{'}); err != nil {
		t.Fatalf("write partial frame: %v", err)
	}
	_ = conn.Close()

	outcome := waitOutcome(t, outcomes, 3*time.Second)
	if outcome.Status != StatusFailure {
		t.Fatalf("expected failure, got %s: %v", outcome.Status, outcome.Err)
	}
	if outcome.Err == nil {
		t.Fatalf("expected failure to carry an error")
	}
}

func TestEngineGuardReleasedBeforeOnDone(t *testing.T) {
	port := freePort(t)
	receiver := newTestEngine(t, port, EngineOptions{AcceptTimeout: 5 * time.Second})
	sender := newTestEngine(t, port, EngineOptions{ConnectTimeout: 5 * time.Second})

	restarted := make(chan bool, 1)
	if _, ok := receiver.StartListener(func(outcome Outcome) {
		_, ok := receiver.StartListener(nil)
		restarted <- ok
	}); !ok {
		t.Fatalf("expected listener to start")
	}

	sendBusy := make(chan bool, 1)
	if _, ok := sender.Send("127.0.0.1", models.TextPayload("plant-42"), func(outcome Outcome) {
		sendBusy <- sender.Busy(DirectionSend)
	}); !ok {
		t.Fatalf("expected send to start")
	}

	select {
	case busy := <-sendBusy:
		if busy {
			t.Fatalf("expected send guard to be released before onDone")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("send did not finish")
	}
	select {
	case ok := <-restarted:
		if !ok {
			t.Fatalf("expected a listener started from onDone to be accepted")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("receive did not finish")
	}
}

func TestEngineSendHonorsExplicitPort(t *testing.T) {
	receiverPort := freePort(t)
	receiver := newTestEngine(t, receiverPort, EngineOptions{AcceptTimeout: 5 * time.Second})
	sender := newTestEngine(t, freePort(t), EngineOptions{ConnectTimeout: 5 * time.Second})

	received := make(chan Outcome, 1)
	if _, ok := receiver.StartListener(func(outcome Outcome) {
		received <- outcome
	}); !ok {
		t.Fatalf("expected listener to start")
	}

	sent := make(chan Outcome, 1)
	job, ok := sender.Send(receiver.ListenAddress(), models.TextPayload("plant-7"), func(outcome Outcome) {
		sent <- outcome
	})
	if !ok {
		t.Fatalf("expected send to start")
	}
	if job.Address != receiver.ListenAddress() {
		t.Fatalf("expected explicit address %q to be dialed, got %q", receiver.ListenAddress(), job.Address)
	}

	if outcome := waitOutcome(t, sent, 5*time.Second); outcome.Status != StatusSuccess {
		t.Fatalf("expected send success, got %s: %v", outcome.Status, outcome.Err)
	}
	if outcome := waitOutcome(t, received, 5*time.Second); outcome.Payload.Text != "plant-7" {
		t.Fatalf("unexpected receive outcome %+v", outcome)
	}
}
