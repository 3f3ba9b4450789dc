package network

import (
	"context"
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"net"
	"strings"
	"time"

	"github.com/horcrux-project/horcrux/internal/logger"
)

func init() {
	// Seed RNG with current timestamp for unique random IPs each run
	mathrand.Seed(time.Now().UnixNano())
}

// CreateAllocation allocates IP/MAC/TAP for an owner (VM or container) on
// the default network and records it in the in-memory allocation table.
func (m *manager) CreateAllocation(ctx context.Context, req AllocateRequest) (*NetworkConfig, error) {
	// Acquire lock to prevent concurrent allocations from:
	// 1. Picking the same IP address
	// 2. Creating duplicate owner names
	// 3. Conflicting DNS updates
	m.mu.Lock()
	defer m.mu.Unlock()

	log := logger.FromContext(ctx)

	// 1. Get default network
	network, err := m.getDefaultNetwork(ctx)
	if err != nil {
		return nil, fmt.Errorf("get default network: %w", err)
	}

	// 2. Check name uniqueness
	exists, err := m.NameExists(ctx, req.OwnerName)
	if err != nil {
		return nil, fmt.Errorf("check name exists: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: name '%s' already exists, can't assign into same network: %s",
			ErrNameExists, req.OwnerName, network.Name)
	}

	// 3. Allocate random available IP
	// Random selection reduces predictability and helps distribute IPs across the subnet.
	// This is especially useful for large /16 networks and reduces conflicts when
	// moving standby VMs across hosts.
	ip, err := m.allocateNextIP(ctx, network.Subnet)
	if err != nil {
		return nil, fmt.Errorf("allocate IP: %w", err)
	}

	// 4. Generate MAC (02:00:00:... format - locally administered)
	mac, err := generateMAC()
	if err != nil {
		return nil, fmt.Errorf("generate MAC: %w", err)
	}

	// 5. Generate TAP name (tap-{first8chars-of-id})
	tap := generateTAPName(req.OwnerID)

	// 6. Create TAP device
	if err := m.createTAPDevice(tap, network.Bridge, network.Isolated); err != nil {
		return nil, fmt.Errorf("create TAP device: %w", err)
	}

	// 7. Register DNS
	if err := m.reloadDNS(ctx); err != nil {
		// Cleanup TAP on DNS failure
		m.deleteTAPDevice(tap)
		return nil, fmt.Errorf("register DNS: %w", err)
	}

	// 8. Calculate netmask from subnet
	_, ipNet, _ := net.ParseCIDR(network.Subnet)
	netmask := fmt.Sprintf("%d.%d.%d.%d", ipNet.Mask[0], ipNet.Mask[1], ipNet.Mask[2], ipNet.Mask[3])

	m.putAllocation(&Allocation{
		OwnerID:   req.OwnerID,
		OwnerName: req.OwnerName,
		Network:   "default",
		IP:        ip,
		MAC:       mac,
		TAPDevice: tap,
		Gateway:   network.Gateway,
		Netmask:   netmask,
		State:     "running",
	})
	m.recordTAPOperation(ctx, "create")

	log.InfoContext(ctx, "allocated network",
		"owner_id", req.OwnerID,
		"owner_name", req.OwnerName,
		"network", "default",
		"ip", ip,
		"mac", mac,
		"tap", tap)

	// 9. Return config (handed to the hypervisor adapter's VMSpec translation)
	return &NetworkConfig{
		IP:        ip,
		MAC:       mac,
		Gateway:   network.Gateway,
		Netmask:   netmask,
		DNS:       network.Gateway, // dnsmasq listens on gateway
		TAPDevice: tap,
	}, nil
}

// RecreateAllocation recreates the TAP device for a restore from a
// persisted allocation (snapshot restore, migration target). The caller
// already knows IP/MAC/TAP from the owner's persisted VM record, so this
// doesn't allocate anything new — it only re-provisions the TAP device and
// re-registers it in the in-memory table.
//
// No lock needed - this operation:
// 1. Doesn't allocate new IPs (reuses existing from the persisted record)
// 2. Doesn't modify DNS (entries remain from before standby)
// 3. Is already protected by the lifecycle manager's per-VM locking
// 4. Uses deterministic TAP names that can't conflict
func (m *manager) RecreateAllocation(ctx context.Context, alloc Allocation) error {
	log := logger.FromContext(ctx)

	network, err := m.getDefaultNetwork(ctx)
	if err != nil {
		return fmt.Errorf("get default network: %w", err)
	}

	if err := m.createTAPDevice(alloc.TAPDevice, network.Bridge, network.Isolated); err != nil {
		return fmt.Errorf("create TAP device: %w", err)
	}
	m.recordTAPOperation(ctx, "recreate")

	alloc.Network = "default"
	m.putAllocation(&alloc)

	log.InfoContext(ctx, "recreated network for restore",
		"owner_id", alloc.OwnerID,
		"network", "default",
		"tap", alloc.TAPDevice)

	return nil
}

// ReleaseAllocation cleans up a network allocation (shutdown/delete).
// Note: TAP devices are automatically cleaned up when the VMM process exits.
// However, in case of unexpected scenarios like host power loss, straggler TAP devices
// may remain until the host is rebooted or manually cleaned up.
func (m *manager) ReleaseAllocation(ctx context.Context, alloc *Allocation) error {
	log := logger.FromContext(ctx)

	if alloc == nil {
		return nil
	}

	// Delete TAP device (best effort)
	if err := m.deleteTAPDevice(alloc.TAPDevice); err != nil {
		log.WarnContext(ctx, "failed to delete TAP device", "tap", alloc.TAPDevice, "error", err)
	}
	m.recordTAPOperation(ctx, "release")
	m.dropAllocation(alloc.OwnerID)

	// Acquire lock to prevent concurrent DNS updates
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reload DNS (removes entries)
	if err := m.reloadDNS(ctx); err != nil {
		log.WarnContext(ctx, "failed to reload DNS", "error", err)
	}

	log.InfoContext(ctx, "released network",
		"owner_id", alloc.OwnerID,
		"network", "default",
		"ip", alloc.IP)

	return nil
}

// allocateNextIP picks a random available IP in the subnet
// Retries up to 5 times if conflicts occur
func (m *manager) allocateNextIP(ctx context.Context, subnet string) (string, error) {
	// Parse subnet
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return "", fmt.Errorf("parse subnet: %w", err)
	}

	// Get all currently allocated IPs
	allocations, err := m.ListAllocations(ctx)
	if err != nil {
		return "", fmt.Errorf("list allocations: %w", err)
	}

	// Build set of used IPs
	usedIPs := make(map[string]bool)
	for _, alloc := range allocations {
		usedIPs[alloc.IP] = true
	}

	// Reserve network address and gateway
	usedIPs[ipNet.IP.String()] = true                 // Network address
	usedIPs[incrementIP(ipNet.IP, 1).String()] = true // Gateway (network + 1)

	// Calculate broadcast address
	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ipNet.IP[i] | ^ipNet.Mask[i]
	}
	usedIPs[broadcast.String()] = true // Broadcast address

	// Calculate subnet size (number of possible IPs)
	ones, bits := ipNet.Mask.Size()
	subnetSize := 1 << (bits - ones) // 2^(32-prefix_length)

	// Try up to 5 times to find a random available IP
	maxRetries := 5
	for attempt := 0; attempt < maxRetries; attempt++ {
		// Generate random offset from network address (skip network and gateway)
		// Start from offset 2 to avoid network address (0) and gateway (1)
		randomOffset := mathrand.Intn(subnetSize-3) + 2

		// Calculate the random IP
		randomIP := incrementIP(ipNet.IP, randomOffset)

		// Check if IP is valid and available
		if ipNet.Contains(randomIP) {
			ipStr := randomIP.String()
			if !usedIPs[ipStr] {
				return ipStr, nil
			}
		}
	}

	// If random allocation failed after 5 attempts, fall back to sequential search
	// This handles the case where the subnet is nearly full
	for testIP := incrementIP(ipNet.IP, 2); ipNet.Contains(testIP); testIP = incrementIP(testIP, 1) {
		ipStr := testIP.String()
		if !usedIPs[ipStr] {
			return ipStr, nil
		}
	}

	return "", fmt.Errorf("no available IPs in subnet %s after %d random attempts and full scan", subnet, maxRetries)
}

// incrementIP increments IP address by n
func incrementIP(ip net.IP, n int) net.IP {
	// Ensure we're working with IPv4 (4 bytes)
	ip4 := ip.To4()
	if ip4 == nil {
		// Should not happen with our subnet parsing, but handle it
		return ip
	}

	result := make(net.IP, 4)
	copy(result, ip4)

	// Convert to 32-bit integer, increment, convert back
	val := uint32(result[0])<<24 | uint32(result[1])<<16 | uint32(result[2])<<8 | uint32(result[3])
	val += uint32(n)
	result[0] = byte(val >> 24)
	result[1] = byte(val >> 16)
	result[2] = byte(val >> 8)
	result[3] = byte(val)

	return result
}

// generateMAC generates a random MAC address with local administration bit set
func generateMAC() (string, error) {
	// Generate 6 random bytes
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	// Set local administration bit (bit 1 of first byte)
	// Use 02:00:00:... format (locally administered, unicast)
	buf[0] = 0x02
	buf[1] = 0x00
	buf[2] = 0x00

	// Format as MAC address
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		buf[0], buf[1], buf[2], buf[3], buf[4], buf[5]), nil
}

// generateTAPName generates a TAP device name from an owner ID.
func generateTAPName(ownerID string) string {
	// Use first 8 chars of owner ID
	// tap-{8chars} fits within 15-char Linux interface name limit
	shortID := ownerID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return "tap-" + strings.ToLower(shortID)
}
