// Package discovery implements the link layer over mDNS. A group owner
// advertises itself as a service instance; clients browse for owners and join
// one by remembering its address.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_pairshare._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record protocol version.
	DefaultVersion = 1
	// DefaultScanTimeout bounds each discovery scan.
	DefaultScanTimeout = 3 * time.Second
	// DefaultRadioPollInterval is how often the radio probe is polled.
	DefaultRadioPollInterval = 5 * time.Second
	// GroupNamePrefix starts every advertised group name.
	GroupNamePrefix = "DIRECT-"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls the mDNS link layer.
type Config struct {
	Service     string
	Domain      string
	Version     int
	ScanTimeout time.Duration

	SelfDeviceID string
	DeviceName   string
	// TransferPort is advertised so clients know where the owner listens.
	TransferPort int

	// Radio is optional. Without it the radio is always reported enabled.
	Radio             RadioProbe
	RadioPollInterval time.Duration

	Logger *zap.Logger

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.RadioPollInterval <= 0 {
		out.RadioPollInterval = DefaultRadioPollInterval
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validate() error {
	if strings.TrimSpace(c.SelfDeviceID) == "" {
		return errors.New("self device ID is required")
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("device name is required")
	}
	if c.TransferPort <= 0 {
		return errors.New("transfer port must be > 0")
	}
	return nil
}

// GroupName returns the group name a device advertises when it owns a group.
func GroupName(deviceName string) string {
	return GroupNamePrefix + strings.TrimSpace(deviceName)
}

// Broadcaster advertises an owned group via mDNS.
type Broadcaster struct {
	server *zeroconf.Server
}

// StartBroadcaster registers the group owner service instance.
func StartBroadcaster(config Config, groupName string) (*Broadcaster, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	txt := []string{
		"device_id=" + cfg.SelfDeviceID,
		"version=" + strconv.Itoa(cfg.Version),
		"group=" + groupName,
	}

	server, err := cfg.registerFn(cfg.DeviceName, cfg.Service, cfg.Domain, cfg.TransferPort, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &Broadcaster{server: server}, nil
}

// Stop stops mDNS broadcasting.
func (b *Broadcaster) Stop() {
	if b == nil || b.server == nil {
		return
	}
	b.server.Shutdown()
}
