// Package p2p defines the callback-style link-layer contract that peer
// discovery transports implement.
package p2p

import (
	"fmt"

	"pairshare/models"
)

// Reason is the transport-provided failure code for a link-layer action.
type Reason int

const (
	ReasonError Reason = iota
	ReasonUnsupported
	ReasonBusy
	ReasonNoServiceRequests
)

// String returns a readable reason including its numeric code.
func (r Reason) String() string {
	var name string
	switch r {
	case ReasonError:
		name = "error"
	case ReasonUnsupported:
		name = "unsupported"
	case ReasonBusy:
		name = "busy"
	case ReasonNoServiceRequests:
		name = "no service requests"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("%s (%d)", name, int(r))
}

// ActionListener receives the outcome of one asynchronous link-layer action.
// Exactly one of the callbacks is invoked, at most once.
type ActionListener struct {
	OnSuccess func()
	OnFailure func(Reason)
}

// Succeed invokes OnSuccess when set.
func (l ActionListener) Succeed() {
	if l.OnSuccess != nil {
		l.OnSuccess()
	}
}

// Fail invokes OnFailure when set.
func (l ActionListener) Fail(reason Reason) {
	if l.OnFailure != nil {
		l.OnFailure(reason)
	}
}

// Config is a connection request to one peer.
type Config struct {
	DeviceAddress string
}

// Manager is the long-lived link-layer handle shared by all session components.
type Manager interface {
	DiscoverPeers(listener ActionListener)
	RequestGroupInfo(callback func(*models.GroupInfo))
	CreateGroup(listener ActionListener)
	RemoveGroup(listener ActionListener)
	Connect(config Config, listener ActionListener)
	CancelConnect(listener ActionListener)

	// Register attaches the event listener and returns the function that detaches it.
	Register(listener EventListener) (unregister func())
}

// EventListener consumes link-layer events. Callbacks may arrive on any goroutine.
type EventListener interface {
	OnStateChanged(enabled bool)
	OnSelfDeviceAvailable(device models.PeerDevice)
	OnPeersAvailable(devices []models.PeerDevice)
	OnConnectionInfoAvailable(info models.GroupInfo)
	OnDisconnection()
	OnChannelDisconnected()
}
