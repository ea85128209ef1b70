package models

// DeviceStatus is the link-layer status of a discoverable device. The zero
// value is StatusUnknown.
type DeviceStatus int

const (
	StatusUnknown DeviceStatus = iota
	StatusConnected
	StatusInvited
	StatusFailed
	StatusAvailable
	StatusUnavailable
)

// String returns the display text for a device status.
func (s DeviceStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusInvited:
		return "invited"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// PeerDevice identifies a discovered or local device.
type PeerDevice struct {
	Name    string       `json:"device_name"`
	Address string       `json:"device_address"`
	Status  DeviceStatus `json:"status"`
}
