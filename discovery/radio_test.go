package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestWatchRadioReportsFirstReadingAndChanges(t *testing.T) {
	readings := []bool{true, true, false, false, true}
	var (
		mu      sync.Mutex
		index   int
		changes []bool
	)
	probe := RadioProbeFunc(func() (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if index >= len(readings) {
			return readings[len(readings)-1], nil
		}
		value := readings[index]
		index++
		return value, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchRadio(ctx, probe, 5*time.Millisecond, func(enabled bool) {
			mu.Lock()
			changes = append(changes, enabled)
			mu.Unlock()
		}, nil)
	}()

	waitForCondition(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 3
	})
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("unexpected changes %v, want %v", changes, want)
		}
	}
}

func TestWatchRadioReportsProbeErrors(t *testing.T) {
	probeErr := errors.New("dbus unavailable")
	probe := RadioProbeFunc(func() (bool, error) {
		return false, probeErr
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 1)
	go WatchRadio(ctx, probe, time.Hour, func(bool) {
		t.Errorf("unexpected state change")
	}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	select {
	case err := <-errs:
		if !errors.Is(err, probeErr) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected probe error callback")
	}
}
