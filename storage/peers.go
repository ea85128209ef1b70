package storage

import (
	"errors"
	"fmt"

	"pairshare/models"
)

// UpsertSeenPeer records a device from a discovery round.
func (s *Store) UpsertSeenPeer(device models.PeerDevice) error {
	if device.Address == "" {
		return errors.New("device_address is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO seen_peers (
			device_address,
			device_name,
			last_status,
			last_seen
		) VALUES (?, ?, ?, ?)
		ON CONFLICT(device_address) DO UPDATE SET
			device_name = excluded.device_name,
			last_status = excluded.last_status,
			last_seen = excluded.last_seen`,
		device.Address,
		device.Name,
		device.Status.String(),
		nowUnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert seen peer %q: %w", device.Address, err)
	}
	return nil
}

// ListSeenPeers returns seen peers, most recent first.
func (s *Store) ListSeenPeers() ([]SeenPeer, error) {
	rows, err := s.db.Query(
		`SELECT
			device_address,
			device_name,
			last_status,
			last_seen
		FROM seen_peers
		ORDER BY last_seen DESC, device_address`,
	)
	if err != nil {
		return nil, fmt.Errorf("list seen peers: %w", err)
	}
	defer rows.Close()

	peers := make([]SeenPeer, 0)
	for rows.Next() {
		var peer SeenPeer
		if err := rows.Scan(&peer.DeviceAddress, &peer.DeviceName, &peer.LastStatus, &peer.LastSeen); err != nil {
			return nil, fmt.Errorf("scan seen peer row: %w", err)
		}
		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen peer rows: %w", err)
	}
	return peers, nil
}
