package discovery

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"pairshare/models"
)

// Owner is a group owner seen during the last scan.
type Owner struct {
	DeviceID   string
	DeviceName string
	GroupName  string
	Version    int
	HostName   string
	Port       int
	Addresses  []string
}

// Host returns the address clients dial, preferring IPv4.
func (o Owner) Host() string {
	for _, address := range o.Addresses {
		if ip := net.ParseIP(address); ip != nil && ip.To4() != nil {
			return ip.To4().String()
		}
	}
	if len(o.Addresses) > 0 {
		return o.Addresses[0]
	}
	return strings.TrimSuffix(o.HostName, ".")
}

// DialAddress returns host:port for the advertised transfer port, or just the
// host when no port was advertised.
func (o Owner) DialAddress() string {
	host := o.Host()
	if o.Port <= 0 || host == "" {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(o.Port))
}

// Device converts the owner to the peer list representation.
func (o Owner) Device() models.PeerDevice {
	return models.PeerDevice{
		Name:    o.DeviceName,
		Address: o.DeviceID,
		Status:  models.StatusAvailable,
	}
}

// scan browses for one ScanTimeout window and returns every owner found,
// excluding this device. A scan window that simply elapses is not an error.
func scan(ctx context.Context, cfg Config, browse browseFunc) (map[string]Owner, error) {
	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]Owner)
	var collectedMu sync.Mutex
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				owner, ok := parseEntry(entry, cfg.SelfDeviceID)
				if !ok {
					continue
				}
				collectedMu.Lock()
				collected[owner.DeviceID] = owner
				collectedMu.Unlock()
			}
		}
	}()

	if err := browse(scanCtx, cfg.Service, cfg.Domain, entries); err != nil &&
		!errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	<-scanCtx.Done()
	<-collectorDone

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collectedMu.Lock()
	defer collectedMu.Unlock()
	return collected, nil
}

// sortedDevices returns the peer list view of a snapshot, ordered by name.
func sortedDevices(owners map[string]Owner) []models.PeerDevice {
	out := make([]models.PeerDevice, 0, len(owners))
	for _, owner := range owners {
		out = append(out, owner.Device())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Address < out[j].Address
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func parseEntry(entry *zeroconf.ServiceEntry, selfDeviceID string) (Owner, bool) {
	txt := txtToMap(entry.Text)

	deviceID := strings.TrimSpace(txt["device_id"])
	if deviceID == "" || deviceID == selfDeviceID {
		return Owner{}, false
	}

	version := 0
	if txt["version"] != "" {
		if parsed, err := strconv.Atoi(txt["version"]); err == nil {
			version = parsed
		}
	}

	addresses := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	seen := make(map[string]struct{})
	for _, ip := range entry.AddrIPv4 {
		addresses = appendAddress(addresses, seen, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addresses = appendAddress(addresses, seen, ip.String())
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = deviceID
	}

	groupName := strings.TrimSpace(txt["group"])
	if groupName == "" {
		groupName = GroupName(name)
	}

	return Owner{
		DeviceID:   deviceID,
		DeviceName: name,
		GroupName:  groupName,
		Version:    version,
		HostName:   entry.HostName,
		Port:       entry.Port,
		Addresses:  addresses,
	}, true
}

func appendAddress(addresses []string, seen map[string]struct{}, raw string) []string {
	if raw == "" || raw == "<nil>" {
		return addresses
	}
	if _, exists := seen[raw]; exists {
		return addresses
	}
	seen[raw] = struct{}{}
	return append(addresses, raw)
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}
