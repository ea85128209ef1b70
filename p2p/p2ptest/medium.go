// Package p2ptest provides an in-memory link layer for exercising session
// logic without a radio.
package p2ptest

import (
	"sync"

	"pairshare/models"
	"pairshare/p2p"
)

// Op names one link-layer action for failure injection and call counting.
type Op string

const (
	OpDiscover      Op = "discover"
	OpCreateGroup   Op = "create_group"
	OpRemoveGroup   Op = "remove_group"
	OpConnect       Op = "connect"
	OpCancelConnect Op = "cancel_connect"
)

// Medium is a shared in-memory radio neighbourhood.
type Medium struct {
	mu       sync.Mutex
	managers map[string]*Manager
}

// NewMedium creates an empty medium.
func NewMedium() *Medium {
	return &Medium{managers: make(map[string]*Manager)}
}

// NewManager attaches a device to the medium. host is the network address
// peers dial when this device owns a group.
func (md *Medium) NewManager(name, address, host string) *Manager {
	m := &Manager{
		medium:    md,
		self:      models.PeerDevice{Name: name, Address: address, Status: models.StatusAvailable},
		host:      host,
		enabled:   true,
		listeners: make(map[int]p2p.EventListener),
		failures:  make(map[Op]p2p.Reason),
		calls:     make(map[Op]int),
	}

	md.mu.Lock()
	md.managers[address] = m
	md.mu.Unlock()
	return m
}

func (md *Medium) lookup(address string) *Manager {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.managers[address]
}

func (md *Medium) owners(exclude string) []models.PeerDevice {
	md.mu.Lock()
	managers := make([]*Manager, 0, len(md.managers))
	for address, m := range md.managers {
		if address != exclude {
			managers = append(managers, m)
		}
	}
	md.mu.Unlock()

	out := make([]models.PeerDevice, 0, len(managers))
	for _, m := range managers {
		if group := m.Group(); group != nil && group.IsOwner {
			out = append(out, m.Self())
		}
	}
	return out
}

// Manager is an in-memory p2p.Manager.
type Manager struct {
	medium *Medium
	host   string

	mu        sync.Mutex
	self      models.PeerDevice
	enabled   bool
	group     *models.GroupInfo
	owner     *Manager
	clients   map[*Manager]struct{}
	listeners map[int]p2p.EventListener
	nextID    int
	failures  map[Op]p2p.Reason
	calls     map[Op]int
}

var _ p2p.Manager = (*Manager)(nil)

// Self returns the local device.
func (m *Manager) Self() models.PeerDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

// Group returns a copy of the current group, or nil.
func (m *Manager) Group() *models.GroupInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group == nil {
		return nil
	}
	group := *m.group
	return &group
}

// SetFailure makes every later call of op fail with reason.
func (m *Manager) SetFailure(op Op, reason p2p.Reason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = reason
}

// ClearFailure removes an injected failure.
func (m *Manager) ClearFailure(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, op)
}

// Calls returns how many times op was invoked.
func (m *Manager) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SetEnabled toggles the simulated radio and broadcasts the change.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	m.mu.Unlock()
	m.emit(func(l p2p.EventListener) { l.OnStateChanged(enabled) })
}

// DropChannel simulates the framework losing the channel.
func (m *Manager) DropChannel() {
	m.emit(func(l p2p.EventListener) { l.OnChannelDisconnected() })
}

// Register implements p2p.Manager. The current radio state and self device
// are delivered immediately, like sticky broadcasts.
func (m *Manager) Register(listener p2p.EventListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	enabled := m.enabled
	self := m.self
	m.mu.Unlock()

	listener.OnStateChanged(enabled)
	listener.OnSelfDeviceAvailable(self)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// DiscoverPeers implements p2p.Manager; every other device owning a group is reported.
func (m *Manager) DiscoverPeers(listener p2p.ActionListener) {
	if reason, failed := m.begin(OpDiscover); failed {
		listener.Fail(reason)
		return
	}
	listener.Succeed()

	peers := m.medium.owners(m.Self().Address)
	m.emit(func(l p2p.EventListener) { l.OnPeersAvailable(peers) })
}

// RequestGroupInfo implements p2p.Manager.
func (m *Manager) RequestGroupInfo(callback func(*models.GroupInfo)) {
	callback(m.Group())
}

// CreateGroup implements p2p.Manager. Creating over an existing group fails with ReasonBusy.
func (m *Manager) CreateGroup(listener p2p.ActionListener) {
	if reason, failed := m.begin(OpCreateGroup); failed {
		listener.Fail(reason)
		return
	}

	m.mu.Lock()
	if m.group != nil {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonBusy)
		return
	}
	m.group = &models.GroupInfo{Formed: true, IsOwner: true, Name: "DIRECT-" + m.self.Name}
	m.clients = make(map[*Manager]struct{})
	m.self.Status = models.StatusConnected
	info := *m.group
	m.mu.Unlock()

	m.emit(func(l p2p.EventListener) { l.OnConnectionInfoAvailable(info) })
	listener.Succeed()
}

// RemoveGroup implements p2p.Manager. Removing without a group fails with ReasonError.
func (m *Manager) RemoveGroup(listener p2p.ActionListener) {
	if reason, failed := m.begin(OpRemoveGroup); failed {
		listener.Fail(reason)
		return
	}

	m.mu.Lock()
	if m.group == nil {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	}
	clients := m.clients
	owner := m.owner
	m.group = nil
	m.owner = nil
	m.clients = nil
	m.self.Status = models.StatusAvailable
	m.mu.Unlock()

	for client := range clients {
		client.leave()
	}
	if owner != nil {
		owner.mu.Lock()
		delete(owner.clients, m)
		owner.mu.Unlock()
	}

	m.emit(func(l p2p.EventListener) { l.OnDisconnection() })
	listener.Succeed()
}

// Connect implements p2p.Manager by joining the owner with config.DeviceAddress.
func (m *Manager) Connect(config p2p.Config, listener p2p.ActionListener) {
	if reason, failed := m.begin(OpConnect); failed {
		listener.Fail(reason)
		return
	}

	owner := m.medium.lookup(config.DeviceAddress)
	if owner == nil || owner == m {
		listener.Fail(p2p.ReasonError)
		return
	}
	ownerGroup := owner.Group()
	if ownerGroup == nil || !ownerGroup.IsOwner {
		listener.Fail(p2p.ReasonError)
		return
	}

	owner.mu.Lock()
	if owner.clients != nil {
		owner.clients[m] = struct{}{}
	}
	owner.mu.Unlock()

	m.mu.Lock()
	m.group = &models.GroupInfo{Formed: true, OwnerAddress: owner.host, Name: ownerGroup.Name}
	m.owner = owner
	m.self.Status = models.StatusConnected
	info := *m.group
	m.mu.Unlock()

	listener.Succeed()
	m.emit(func(l p2p.EventListener) { l.OnConnectionInfoAvailable(info) })
}

// CancelConnect implements p2p.Manager.
func (m *Manager) CancelConnect(listener p2p.ActionListener) {
	if reason, failed := m.begin(OpCancelConnect); failed {
		listener.Fail(reason)
		return
	}
	listener.Succeed()
}

func (m *Manager) leave() {
	m.mu.Lock()
	if m.group == nil {
		m.mu.Unlock()
		return
	}
	m.group = nil
	m.owner = nil
	m.self.Status = models.StatusAvailable
	m.mu.Unlock()
	m.emit(func(l p2p.EventListener) { l.OnDisconnection() })
}

func (m *Manager) begin(op Op) (p2p.Reason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	reason, failed := m.failures[op]
	return reason, failed
}

func (m *Manager) emit(fn func(p2p.EventListener)) {
	m.mu.Lock()
	listeners := make([]p2p.EventListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		fn(l)
	}
}
