package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"pairshare/models"
	"pairshare/p2p"
)

// Adapter is the session's link-layer event listener and the only writer of
// the peer list and group info.
type Adapter struct {
	manager p2p.Manager
	state   *State
	log     *zap.Logger

	mu      sync.RWMutex
	enabled bool
	self    models.PeerDevice
	peers   []models.PeerDevice
	group   *models.GroupInfo

	onPeers    func([]models.PeerDevice)
	unregister func()
}

var _ p2p.EventListener = (*Adapter)(nil)

func newAdapter(manager p2p.Manager, state *State, logger *zap.Logger) *Adapter {
	return &Adapter{
		manager: manager,
		state:   state,
		log:     logger,
	}
}

// start registers for link-layer events. Sticky events may arrive before it returns.
func (a *Adapter) start() {
	unregister := a.manager.Register(a)
	a.mu.Lock()
	a.unregister = unregister
	a.mu.Unlock()
}

func (a *Adapter) stop() {
	a.mu.Lock()
	unregister := a.unregister
	a.unregister = nil
	a.mu.Unlock()
	if unregister != nil {
		unregister()
	}
}

// Enabled reports the last radio state.
func (a *Adapter) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Self returns the last reported self device.
func (a *Adapter) Self() models.PeerDevice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self
}

// Peers returns a copy of the visible peer list.
func (a *Adapter) Peers() []models.PeerDevice {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.PeerDevice(nil), a.peers...)
}

// Peer looks a device up in the visible peer list.
func (a *Adapter) Peer(address string) (models.PeerDevice, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, peer := range a.peers {
		if peer.Address == address {
			return peer, true
		}
	}
	return models.PeerDevice{}, false
}

// GroupInfo returns a copy of the current group info, or nil.
func (a *Adapter) GroupInfo() *models.GroupInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.group == nil {
		return nil
	}
	group := *a.group
	return &group
}

// Discover clears the peer list and starts a link-layer scan. With the radio
// off it fails fast without touching the transport.
func (a *Adapter) Discover(ctx context.Context) error {
	if !a.Enabled() {
		a.state.logf("radio disabled")
		a.state.setReceiverState(ReceiverState{Kind: ReceiverError, Message: "radio disabled"})
		return ErrRadioDisabled
	}

	a.replacePeers(nil)
	if err := await(ctx, "discover peers", a.manager.DiscoverPeers); err != nil {
		var actionErr *ActionError
		if errors.As(err, &actionErr) {
			a.state.setReceiverState(ReceiverState{Kind: ReceiverError, Message: actionErr.Error()})
		}
		return statusError(err, "discover")
	}
	a.state.setReceiverState(ReceiverState{Kind: ReceiverDiscovering})
	return nil
}

func (a *Adapter) replacePeers(devices []models.PeerDevice) {
	peers := append([]models.PeerDevice(nil), devices...)
	a.mu.Lock()
	a.peers = peers
	onPeers := a.onPeers
	a.mu.Unlock()

	a.state.publishPeers(append([]models.PeerDevice(nil), peers...))
	if onPeers != nil && len(peers) > 0 {
		onPeers(append([]models.PeerDevice(nil), peers...))
	}
}

func (a *Adapter) clearGroup() {
	a.mu.Lock()
	hadGroup := a.group != nil
	a.group = nil
	a.mu.Unlock()
	if hadGroup {
		a.state.publishConnection(nil)
	}
}

// OnStateChanged implements p2p.EventListener.
func (a *Adapter) OnStateChanged(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	a.state.logf("radio enabled: %t", enabled)
}

// OnSelfDeviceAvailable implements p2p.EventListener.
func (a *Adapter) OnSelfDeviceAvailable(device models.PeerDevice) {
	a.mu.Lock()
	a.self = device
	a.mu.Unlock()
	a.state.logf("deviceName: %s / deviceStatus: %s", device.Name, device.Status)
}

// OnPeersAvailable implements p2p.EventListener. The list replaces the
// previous one.
func (a *Adapter) OnPeersAvailable(devices []models.PeerDevice) {
	a.replacePeers(devices)
	a.log.Debug("peers available", zap.Int("count", len(devices)))
}

// OnConnectionInfoAvailable implements p2p.EventListener.
func (a *Adapter) OnConnectionInfoAvailable(info models.GroupInfo) {
	a.mu.Lock()
	group := info
	a.group = &group
	a.mu.Unlock()

	a.state.logf("connection info: formed=%t owner=%t owner_address=%s", info.Formed, info.IsOwner, info.OwnerAddress)
	published := info
	a.state.publishConnection(&published)
}

// OnDisconnection implements p2p.EventListener.
func (a *Adapter) OnDisconnection() {
	a.mu.Lock()
	a.peers = nil
	a.mu.Unlock()
	a.state.publishPeers(nil)
	a.clearGroup()
	a.state.logf("disconnected")
}

// OnChannelDisconnected implements p2p.EventListener.
func (a *Adapter) OnChannelDisconnected() {
	a.state.logf("channel disconnected")
}
