// Package session ties the link layer to the transfer engine: role selection,
// discovery, group create and remove, connect and disconnect, and one-payload
// transfers, with every outcome published as observable status.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairshare/models"
	"pairshare/p2p"
	"pairshare/transfer"
)

const (
	// DefaultEventCapacity is the per-subscriber event buffer.
	DefaultEventCapacity = 64
	// closeTimeout bounds the group removal performed by Close.
	closeTimeout = 5 * time.Second

	guardRole = "role"
)

// History records transfers and seen peers. storage.Store implements it.
type History interface {
	BeginTransfer(job transfer.Job) error
	FinishTransfer(outcome transfer.Outcome) error
	UpsertSeenPeer(device models.PeerDevice) error
}

// Options configures a Session.
type Options struct {
	// Manager is the shared link-layer handle. Required.
	Manager  p2p.Manager
	Transfer transfer.EngineOptions
	// History is optional.
	History       History
	Logger        *zap.Logger
	EventCapacity int
	// DisableAutoListen keeps CreateGroup from starting the listener.
	DisableAutoListen bool
}

// Session is the caller-facing facade. All methods are safe for concurrent use.
type Session struct {
	opts    Options
	log     *zap.Logger
	state   *State
	adapter *Adapter
	groups  *GroupCoordinator
	conns   *ConnectionManager
	engine  *transfer.Engine
	history History
	guard   *transfer.Guard

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a session and registers it for link-layer events.
func New(options Options) (*Session, error) {
	if options.Manager == nil {
		return nil, errors.New("link-layer manager is required")
	}
	if options.EventCapacity <= 0 {
		options.EventCapacity = DefaultEventCapacity
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:    options,
		log:     logger,
		history: options.History,
		guard:   transfer.NewGuard(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.state = newState(logger, options.EventCapacity)
	s.adapter = newAdapter(options.Manager, s.state, logger.Named("adapter"))
	s.adapter.onPeers = s.recordPeers
	s.groups = newGroupCoordinator(options.Manager, s.state, logger.Named("group"))
	s.conns = newConnectionManager(options.Manager, s.adapter, s.state, logger.Named("connection"))

	engineOptions := options.Transfer
	if engineOptions.Logger == nil {
		engineOptions.Logger = options.Logger
	}
	userOnStart := engineOptions.OnStart
	engineOptions.OnStart = func(job transfer.Job) {
		s.recordStart(job)
		if userOnStart != nil {
			userOnStart(job)
		}
	}
	s.engine = transfer.NewEngine(engineOptions)

	s.adapter.start()
	return s, nil
}

// Role returns the selected role.
func (s *Session) Role() Role {
	return s.state.Role()
}

// GroupStatus returns the latest group creation status.
func (s *Session) GroupStatus() GroupCreationStatus {
	return s.state.GroupStatus()
}

// ReceiverState returns the latest connection and transfer state.
func (s *Session) ReceiverState() ReceiverState {
	return s.state.ReceiverState()
}

// Peers returns the visible peer list.
func (s *Session) Peers() []models.PeerDevice {
	return s.adapter.Peers()
}

// Self returns the local device as last reported by the link layer.
func (s *Session) Self() models.PeerDevice {
	return s.adapter.Self()
}

// RadioEnabled reports the last radio state.
func (s *Session) RadioEnabled() bool {
	return s.adapter.Enabled()
}

// GroupInfo returns the current group, or nil.
func (s *Session) GroupInfo() *models.GroupInfo {
	return s.adapter.GroupInfo()
}

// TransferActive reports whether a send or receive is in flight.
func (s *Session) TransferActive() bool {
	return s.engine.Active()
}

// Subscribe returns a subscription to topics, or to all topics when none are given.
func (s *Session) Subscribe(topics ...Topic) *Subscription {
	return s.state.Subscribe(topics...)
}

// SelectRole sets the role and returns both statuses to idle. It fails with
// ErrTransferActive while a transfer is in flight. A call made while another
// role change is being applied is dropped.
func (s *Session) SelectRole(role Role) error {
	if role < RoleUnselected || role > RoleReceiver {
		return fmt.Errorf("invalid role %d", int(role))
	}
	if s.closed() {
		return ErrClosed
	}
	if !s.guard.TryAcquire(guardRole) {
		s.log.Debug("role change dropped", zap.Stringer("role", role))
		return nil
	}
	defer s.guard.Release(guardRole)

	if s.engine.Active() {
		return ErrTransferActive
	}
	s.state.setRole(role)
	s.state.setGroupStatus(GroupCreationStatus{Kind: GroupIdle})
	s.state.setReceiverState(ReceiverState{Kind: ReceiverIdle})
	s.state.logf("role selected: %s", role)
	return nil
}

// Reset returns both statuses to idle without touching the role or the link.
func (s *Session) Reset() {
	s.state.setGroupStatus(GroupCreationStatus{Kind: GroupIdle})
	s.state.setReceiverState(ReceiverState{Kind: ReceiverIdle})
}

// Discover starts a peer scan. The result arrives on TopicPeers.
func (s *Session) Discover(ctx context.Context) error {
	if s.closed() {
		return ErrClosed
	}
	return s.adapter.Discover(ctx)
}

// CreateGroup makes this device a group owner, replacing any existing group,
// and starts the listener unless DisableAutoListen is set.
func (s *Session) CreateGroup(ctx context.Context) error {
	if s.closed() {
		return ErrClosed
	}
	if s.Role() == RoleSender {
		return ErrRoleMismatch
	}

	if _, err := s.groups.CreateGroup(ctx); err != nil {
		return err
	}
	if s.opts.DisableAutoListen {
		return nil
	}
	if _, err := s.StartListener(); err != nil {
		s.log.Warn("start listener after group creation failed", zap.Error(err))
	}
	return nil
}

// RemoveGroup removes the current group if any.
func (s *Session) RemoveGroup(ctx context.Context) error {
	if s.closed() {
		return ErrClosed
	}
	return s.groups.RemoveGroup(ctx)
}

// Connect joins the group of the visible peer with the given address.
func (s *Session) Connect(ctx context.Context, address string) error {
	if s.closed() {
		return ErrClosed
	}
	if s.Role() == RoleReceiver {
		return ErrRoleMismatch
	}
	peer, ok := s.adapter.Peer(address)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeer, address)
	}
	return s.conns.Connect(ctx, peer)
}

// Disconnect cancels any pending connect and removes the group. Afterwards
// there is no group info, whatever the link layer reported.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.closed() {
		return ErrClosed
	}
	return s.conns.Disconnect(ctx)
}

// AwaitGroupInfo blocks until a formed group is known or ctx ends.
func (s *Session) AwaitGroupInfo(ctx context.Context) (models.GroupInfo, error) {
	sub := s.state.Subscribe(TopicConnection)
	defer sub.Unsubscribe()

	if group := s.adapter.GroupInfo(); group != nil && group.Formed {
		return *group, nil
	}
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return models.GroupInfo{}, ErrClosed
			}
			if event.Group != nil && event.Group.Formed {
				return *event.Group, nil
			}
		case <-ctx.Done():
			return models.GroupInfo{}, ctx.Err()
		}
	}
}

// Send delivers payload to the owner of the joined group in the background.
// It returns false when a send is already in flight. The outcome is published
// on TopicTransfer.
func (s *Session) Send(payload models.Payload) (bool, error) {
	if s.closed() {
		return false, ErrClosed
	}
	if s.Role() == RoleReceiver {
		return false, ErrRoleMismatch
	}
	group := s.adapter.GroupInfo()
	if group == nil || !group.Formed {
		return false, ErrNoGroup
	}
	if group.IsOwner {
		return false, ErrRoleMismatch
	}
	if group.OwnerAddress == "" {
		return false, fmt.Errorf("%w: owner address unknown", ErrNoGroup)
	}
	if payload.Type == models.PayloadText {
		if err := transfer.ValidateText(payload.Text); err != nil {
			return false, err
		}
	}

	job, started := s.engine.Send(group.OwnerAddress, payload, s.onSendDone)
	if !started {
		s.log.Debug("send dropped, another send is in flight")
		return false, nil
	}
	s.state.logf("sending %s to %s", payload, job.Address)
	return true, nil
}

// StartListener accepts one payload in the background. It returns false when
// a listener is already active.
func (s *Session) StartListener() (bool, error) {
	if s.closed() {
		return false, ErrClosed
	}
	if s.Role() == RoleSender {
		return false, ErrRoleMismatch
	}
	if group := s.adapter.GroupInfo(); group != nil && group.Formed && !group.IsOwner {
		return false, ErrRoleMismatch
	}

	job, started := s.engine.StartListener(s.onReceiveDone)
	if !started {
		s.log.Debug("listener already active")
		return false, nil
	}
	s.state.logf("listening on %s", job.Address)
	return true, nil
}

// Close stops in-flight transfers, removes any group, unregisters from the
// link layer and ends all subscriptions.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.engine.Close()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if removeErr := s.groups.RemoveGroupIfNeed(ctx); removeErr != nil {
			err = fmt.Errorf("remove group on close: %w", removeErr)
		}

		s.adapter.stop()
		s.state.close()
	})
	return err
}

func (s *Session) closed() bool {
	return s.ctx.Err() != nil
}

func (s *Session) onReceiveDone(outcome transfer.Outcome) {
	switch outcome.Status {
	case transfer.StatusSuccess:
		data := outcome.Payload.Text
		if outcome.Payload.Type == models.PayloadFile {
			data = outcome.Payload.Path
		}
		s.state.setReceiverState(ReceiverState{
			Kind:    ReceiverDataReceived,
			Data:    data,
			Payload: outcome.Payload,
		})
		s.state.logf("received %s", outcome.Payload)
	default:
		s.state.setReceiverState(ReceiverState{
			Kind:     ReceiverError,
			Message:  outcome.Message(),
			TimedOut: outcome.Status == transfer.StatusTimedOut,
		})
		s.state.logf("receive failed: %s", outcome.Message())
	}
	s.finishOutcome(outcome)
}

func (s *Session) onSendDone(outcome transfer.Outcome) {
	if outcome.Status == transfer.StatusSuccess {
		s.state.logf("sent %s", outcome.Payload)
	} else {
		s.state.setReceiverState(ReceiverState{
			Kind:     ReceiverError,
			Message:  outcome.Message(),
			TimedOut: outcome.Status == transfer.StatusTimedOut,
		})
		s.state.logf("send failed: %s", outcome.Message())
	}
	s.finishOutcome(outcome)
}

func (s *Session) finishOutcome(outcome transfer.Outcome) {
	s.state.publishOutcome(outcome)
	if s.history == nil {
		return
	}
	if err := s.history.FinishTransfer(outcome); err != nil {
		s.log.Warn("record transfer outcome failed", zap.String("job_id", outcome.ID), zap.Error(err))
	}
}

func (s *Session) recordStart(job transfer.Job) {
	if s.history == nil {
		return
	}
	if err := s.history.BeginTransfer(job); err != nil {
		s.log.Warn("record transfer start failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Session) recordPeers(devices []models.PeerDevice) {
	if s.history == nil {
		return
	}
	for _, device := range devices {
		if err := s.history.UpsertSeenPeer(device); err != nil {
			s.log.Warn("record seen peer failed", zap.String("address", device.Address), zap.Error(err))
		}
	}
}
