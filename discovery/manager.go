package discovery

import (
	"context"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"pairshare/models"
	"pairshare/p2p"
)

// Manager is a p2p.Manager backed by mDNS. Owners advertise a service
// instance; clients keep the last browse snapshot and join an owner from it.
type Manager struct {
	cfg    Config
	log    *zap.Logger
	browse browseFunc

	mu          sync.Mutex
	enabled     bool
	scanning    bool
	group       *models.GroupInfo
	broadcaster *Broadcaster
	owners      map[string]Owner
	listeners   map[int]p2p.EventListener
	nextID      int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ p2p.Manager = (*Manager)(nil)

// NewManager validates config and starts the radio watcher when a probe is set.
func NewManager(config Config) (*Manager, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		log:       cfg.Logger.Named("discovery"),
		browse:    browse,
		enabled:   true,
		owners:    make(map[string]Owner),
		listeners: make(map[int]p2p.EventListener),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.Radio != nil {
		first := make(chan struct{})
		var once sync.Once
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer once.Do(func() { close(first) })
			WatchRadio(ctx, cfg.Radio, cfg.RadioPollInterval, func(enabled bool) {
				m.setEnabled(enabled)
				once.Do(func() { close(first) })
			}, func(err error) {
				m.log.Debug("radio probe failed", zap.Error(err))
				once.Do(func() { close(first) })
			})
		}()
		<-first
	}

	return m, nil
}

// Close stops the radio watcher and any owned advertisement.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	broadcaster := m.broadcaster
	m.broadcaster = nil
	m.mu.Unlock()
	broadcaster.Stop()
}

// Self returns the local device as peers see it.
func (m *Manager) Self() models.PeerDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfLocked()
}

func (m *Manager) selfLocked() models.PeerDevice {
	status := models.StatusAvailable
	if !m.enabled {
		status = models.StatusUnavailable
	} else if m.group != nil {
		status = models.StatusConnected
	}
	return models.PeerDevice{Name: m.cfg.DeviceName, Address: m.cfg.SelfDeviceID, Status: status}
}

// Register implements p2p.Manager. Radio state and self device are delivered
// immediately.
func (m *Manager) Register(listener p2p.EventListener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	enabled := m.enabled
	self := m.selfLocked()
	m.mu.Unlock()

	listener.OnStateChanged(enabled)
	listener.OnSelfDeviceAvailable(self)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// DiscoverPeers implements p2p.Manager. Success means a scan started; the
// result arrives as OnPeersAvailable with the full owner list.
func (m *Manager) DiscoverPeers(listener p2p.ActionListener) {
	m.mu.Lock()
	switch {
	case !m.enabled:
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	case m.scanning:
		m.mu.Unlock()
		listener.Fail(p2p.ReasonBusy)
		return
	}
	m.scanning = true
	m.mu.Unlock()

	listener.Succeed()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		owners, err := scan(m.ctx, m.cfg, m.browse)

		m.mu.Lock()
		m.scanning = false
		if err == nil {
			m.owners = owners
		}
		m.mu.Unlock()

		if err != nil {
			m.log.Warn("mDNS browse failed", zap.Error(err))
			return
		}
		devices := sortedDevices(owners)
		m.log.Debug("scan complete", zap.Int("owners", len(devices)))
		m.emit(func(l p2p.EventListener) { l.OnPeersAvailable(devices) })
	}()
}

// RequestGroupInfo implements p2p.Manager.
func (m *Manager) RequestGroupInfo(callback func(*models.GroupInfo)) {
	m.mu.Lock()
	var info *models.GroupInfo
	if m.group != nil {
		group := *m.group
		info = &group
	}
	m.mu.Unlock()
	callback(info)
}

// CreateGroup implements p2p.Manager by advertising this device as owner.
// Creating over an existing group fails with ReasonBusy.
func (m *Manager) CreateGroup(listener p2p.ActionListener) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	}
	if m.group != nil {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonBusy)
		return
	}

	groupName := GroupName(m.cfg.DeviceName)
	broadcaster, err := StartBroadcaster(m.cfg, groupName)
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("advertise group failed", zap.Error(err))
		listener.Fail(p2p.ReasonError)
		return
	}
	m.broadcaster = broadcaster
	m.group = &models.GroupInfo{Formed: true, IsOwner: true, Name: groupName}
	info := *m.group
	m.mu.Unlock()

	m.log.Info("group created", zap.String("group", groupName))
	m.emit(func(l p2p.EventListener) { l.OnConnectionInfoAvailable(info) })
	listener.Succeed()
}

// RemoveGroup implements p2p.Manager. Owners stop advertising; clients forget
// the owner. Removing without a group fails with ReasonError.
func (m *Manager) RemoveGroup(listener p2p.ActionListener) {
	m.mu.Lock()
	if m.group == nil {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	}
	broadcaster := m.broadcaster
	m.broadcaster = nil
	m.group = nil
	m.mu.Unlock()

	broadcaster.Stop()
	m.log.Info("group removed")
	m.emit(func(l p2p.EventListener) { l.OnDisconnection() })
	listener.Succeed()
}

// Connect implements p2p.Manager by joining an owner from the last scan.
func (m *Manager) Connect(config p2p.Config, listener p2p.ActionListener) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	}
	if m.group != nil {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonBusy)
		return
	}
	owner, ok := m.owners[config.DeviceAddress]
	if !ok {
		m.mu.Unlock()
		listener.Fail(p2p.ReasonError)
		return
	}
	m.group = &models.GroupInfo{Formed: true, OwnerAddress: owner.DialAddress(), Name: owner.GroupName}
	info := *m.group
	m.mu.Unlock()

	m.log.Info("joined group",
		zap.String("group", owner.GroupName),
		zap.String("owner", owner.DeviceName),
		zap.String("host", info.OwnerAddress),
	)
	listener.Succeed()
	m.emit(func(l p2p.EventListener) { l.OnConnectionInfoAvailable(info) })
}

// CancelConnect implements p2p.Manager. Joining is immediate, so there is
// never a pending negotiation to cancel.
func (m *Manager) CancelConnect(listener p2p.ActionListener) {
	listener.Succeed()
}

func (m *Manager) setEnabled(enabled bool) {
	m.mu.Lock()
	if m.enabled == enabled {
		m.mu.Unlock()
		return
	}
	m.enabled = enabled
	self := m.selfLocked()
	m.mu.Unlock()

	m.log.Info("radio state changed", zap.Bool("enabled", enabled))
	m.emit(func(l p2p.EventListener) {
		l.OnStateChanged(enabled)
		l.OnSelfDeviceAvailable(self)
	})
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
