package session

import (
	"fmt"
	"sync"

	"github.com/cskr/pubsub/v2"
	"go.uber.org/zap"

	"pairshare/models"
	"pairshare/transfer"
)

// Topic names an observable stream.
type Topic string

const (
	TopicGroupStatus   Topic = "group_status"
	TopicReceiverState Topic = "receiver_state"
	TopicPeers         Topic = "peers"
	TopicConnection    Topic = "connection"
	TopicRole          Topic = "role"
	TopicLog           Topic = "log"
	TopicTransfer      Topic = "transfer"
)

// AllTopics lists every topic a Session publishes.
var AllTopics = []Topic{
	TopicGroupStatus,
	TopicReceiverState,
	TopicPeers,
	TopicConnection,
	TopicRole,
	TopicLog,
	TopicTransfer,
}

// Event is one published value. Only the field matching Topic is set.
type Event struct {
	Topic         Topic
	GroupStatus   GroupCreationStatus
	ReceiverState ReceiverState
	Peers         []models.PeerDevice
	// Group is nil when the connection was torn down.
	Group   *models.GroupInfo
	Role    Role
	Log     string
	Outcome transfer.Outcome
}

// Subscription receives events for the topics it was created with.
type Subscription struct {
	C      <-chan Event
	unsub  func()
	closed sync.Once
}

// Unsubscribe stops delivery. Pending events may still be drained from C.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.unsub == nil {
		return
	}
	s.closed.Do(s.unsub)
}

// State holds the latest value of every status and fans changes out to
// subscribers. Publishing never blocks; slow subscribers miss events and
// should read the snapshot getters instead.
type State struct {
	log *zap.Logger

	mu       sync.RWMutex
	closed   bool
	role     Role
	group    GroupCreationStatus
	receiver ReceiverState

	bus *pubsub.PubSub[Topic, Event]
}

func newState(logger *zap.Logger, capacity int) *State {
	return &State{
		log: logger,
		bus: pubsub.New[Topic, Event](capacity),
	}
}

// Role returns the current role.
func (s *State) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// GroupStatus returns the latest group status.
func (s *State) GroupStatus() GroupCreationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.group
}

// ReceiverState returns the latest receiver state.
func (s *State) ReceiverState() ReceiverState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receiver
}

// Subscribe returns a subscription to topics, or to every topic when none
// are given.
func (s *State) Subscribe(topics ...Topic) *Subscription {
	if len(topics) == 0 {
		topics = AllTopics
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		ch := make(chan Event)
		close(ch)
		return &Subscription{C: ch}
	}

	ch := s.bus.Sub(topics...)
	return &Subscription{
		C: ch,
		unsub: func() {
			go s.unsub(ch, topics)
		},
	}
}

func (s *State) unsub(ch chan Event, topics []Topic) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.bus.Unsub(ch, topics...)
}

func (s *State) setRole(role Role) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
	s.publish(Event{Topic: TopicRole, Role: role})
}

func (s *State) setGroupStatus(status GroupCreationStatus) {
	s.mu.Lock()
	s.group = status
	s.mu.Unlock()
	s.log.Debug("group status", zap.Stringer("status", status))
	s.publish(Event{Topic: TopicGroupStatus, GroupStatus: status})
}

func (s *State) setReceiverState(state ReceiverState) {
	s.mu.Lock()
	s.receiver = state
	s.mu.Unlock()
	s.log.Debug("receiver state", zap.Stringer("state", state))
	s.publish(Event{Topic: TopicReceiverState, ReceiverState: state})
}

func (s *State) publishPeers(peers []models.PeerDevice) {
	s.publish(Event{Topic: TopicPeers, Peers: peers})
}

func (s *State) publishConnection(group *models.GroupInfo) {
	s.publish(Event{Topic: TopicConnection, Group: group})
}

func (s *State) publishOutcome(outcome transfer.Outcome) {
	s.publish(Event{Topic: TopicTransfer, Outcome: outcome})
}

// logf emits a free-text log line.
func (s *State) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	s.log.Info(line)
	s.publish(Event{Topic: TopicLog, Log: line})
}

func (s *State) publish(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.bus.TryPub(event, event.Topic)
}

func (s *State) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.Shutdown()
}
