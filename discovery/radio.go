package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/Wifx/gonetworkmanager"
)

// RadioProbe reports whether the wireless radio is enabled.
type RadioProbe interface {
	Enabled() (bool, error)
}

// RadioProbeFunc adapts a function to RadioProbe.
type RadioProbeFunc func() (bool, error)

// Enabled implements RadioProbe.
func (f RadioProbeFunc) Enabled() (bool, error) {
	return f()
}

// NetworkManagerProbe reads WirelessEnabled from NetworkManager over D-Bus.
type NetworkManagerProbe struct {
	nm gonetworkmanager.NetworkManager
}

// NewNetworkManagerProbe connects to the system NetworkManager.
func NewNetworkManagerProbe() (*NetworkManagerProbe, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("connect to NetworkManager: %w", err)
	}
	return &NetworkManagerProbe{nm: nm}, nil
}

// Enabled implements RadioProbe.
func (p *NetworkManagerProbe) Enabled() (bool, error) {
	enabled, err := p.nm.GetPropertyWirelessEnabled()
	if err != nil {
		return false, fmt.Errorf("read WirelessEnabled: %w", err)
	}
	return enabled, nil
}

// WatchRadio polls probe every interval until ctx is done and calls onChange
// with the first reading and with every later change. Probe errors are passed
// to onError and do not change the reported state.
func WatchRadio(ctx context.Context, probe RadioProbe, interval time.Duration, onChange func(bool), onError func(error)) {
	if interval <= 0 {
		interval = DefaultRadioPollInterval
	}

	var (
		known   bool
		current bool
	)
	poll := func() {
		enabled, err := probe.Enabled()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if known && enabled == current {
			return
		}
		known = true
		current = enabled
		onChange(enabled)
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}
