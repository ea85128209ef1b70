package models

// GroupInfo describes the link-layer group this device currently belongs to.
type GroupInfo struct {
	Formed       bool   `json:"formed"`
	IsOwner      bool   `json:"is_owner"`
	// OwnerAddress is a host, or host:port when the owner advertised its port.
	OwnerAddress string `json:"owner_address"`
	Name         string `json:"name"`
}
