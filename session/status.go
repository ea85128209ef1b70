package session

import (
	"strconv"

	"pairshare/models"
)

// Role is the part this device plays in a transfer.
type Role int

const (
	RoleUnselected Role = iota
	RoleSender
	RoleReceiver
)

// String returns the lower-case role name.
func (r Role) String() string {
	switch r {
	case RoleUnselected:
		return "unselected"
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// GroupStatusKind discriminates GroupCreationStatus.
type GroupStatusKind int

const (
	GroupIdle GroupStatusKind = iota
	GroupInProgress
	GroupSuccess
	GroupError
)

// GroupCreationStatus reports group create and remove progress.
// GroupName is set for GroupSuccess, Message for GroupError.
type GroupCreationStatus struct {
	Kind      GroupStatusKind
	GroupName string
	Message   string
}

func (s GroupCreationStatus) String() string {
	switch s.Kind {
	case GroupIdle:
		return "idle"
	case GroupInProgress:
		return "in progress"
	case GroupSuccess:
		return "success: " + s.GroupName
	case GroupError:
		return "error: " + s.Message
	default:
		return "unknown"
	}
}

// ReceiverKind discriminates ReceiverState.
type ReceiverKind int

const (
	ReceiverIdle ReceiverKind = iota
	ReceiverDiscovering
	ReceiverConnecting
	ReceiverDataReceived
	ReceiverError
)

// ReceiverState is the connection and transfer status.
//
// DeviceName is set for ReceiverConnecting. Data and Payload are set for
// ReceiverDataReceived; Data is the identifier text, or the stored path for
// files. Message and TimedOut are set for ReceiverError.
type ReceiverState struct {
	Kind       ReceiverKind
	DeviceName string
	Data       string
	Payload    models.Payload
	Message    string
	TimedOut   bool
}

func (s ReceiverState) String() string {
	switch s.Kind {
	case ReceiverIdle:
		return "idle"
	case ReceiverDiscovering:
		return "discovering"
	case ReceiverConnecting:
		return "connecting to " + s.DeviceName
	case ReceiverDataReceived:
		return "received " + s.Data
	case ReceiverError:
		if s.TimedOut {
			return "error (timed out): " + s.Message
		}
		return "error: " + s.Message
	default:
		return "unknown"
	}
}
