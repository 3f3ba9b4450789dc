package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/horcrux-project/horcrux/internal/config"
	"github.com/horcrux-project/horcrux/internal/logger"
	"github.com/horcrux-project/horcrux/internal/paths"
	"go.opentelemetry.io/otel/metric"
)

// Manager defines the interface for network management. Callers are
// internal/lifecycle (VM start/stop/restore) and the startup reconciler
// (§4.D), never a bare id list derived by scanning the filesystem.
type Manager interface {
	// Lifecycle. existing carries the allocations internal/inventory's
	// startup reconciliation already knows about (one per VM/container
	// whose persisted record has a NIC), so orphaned TAPs from a previous
	// process crash can be told apart from ones still owned by a record.
	Initialize(ctx context.Context, existing []Allocation) error

	// Owner allocation operations (called by the VM lifecycle manager).
	CreateAllocation(ctx context.Context, req AllocateRequest) (*NetworkConfig, error)
	RecreateAllocation(ctx context.Context, alloc Allocation) error
	ReleaseAllocation(ctx context.Context, alloc *Allocation) error

	// Queries over the in-memory allocation table.
	GetAllocation(ctx context.Context, ownerID string) (*Allocation, error)
	ListAllocations(ctx context.Context) ([]Allocation, error)
	NameExists(ctx context.Context, name string) (bool, error)
}

// manager implements the Manager interface
type manager struct {
	paths  *paths.Paths
	config *config.Config
	mu     sync.Mutex // serializes IP/TAP/DNS allocation side effects

	allocMu     sync.RWMutex
	allocations map[string]*Allocation // keyed by OwnerID

	metrics *Metrics
}

// NewManager creates a new network manager.
// If meter is nil, metrics are disabled.
func NewManager(p *paths.Paths, cfg *config.Config, meter metric.Meter) Manager {
	m := &manager{
		paths:       p,
		config:      cfg,
		allocations: make(map[string]*Allocation),
	}

	// Initialize metrics if meter is provided
	if meter != nil {
		metrics, err := newNetworkMetrics(meter, m)
		if err == nil {
			m.metrics = metrics
		}
	}

	return m
}

// Initialize initializes the network manager and creates default network.
// existing seeds the allocation table from the inventory manager's
// reconciled VM/container records, so TAPs for devices that still have an
// owning record are preserved and everything else on the bridge is
// considered orphaned.
func (m *manager) Initialize(ctx context.Context, existing []Allocation) error {
	log := logger.FromContext(ctx)

	// Derive gateway from subnet if not explicitly configured
	gateway := m.config.ServerSubnetGateway
	if gateway == "" {
		var err error
		gateway, err = DeriveGateway(m.config.ServerSubnetCIDR)
		if err != nil {
			return fmt.Errorf("derive gateway from subnet: %w", err)
		}
	}

	log.InfoContext(ctx, "initializing network manager",
		"bridge", m.config.ServerBridgeName,
		"subnet", m.config.ServerSubnetCIDR,
		"gateway", gateway)

	// Check for subnet conflicts with existing host routes before creating bridge
	if err := m.checkSubnetConflicts(ctx, m.config.ServerSubnetCIDR); err != nil {
		return err
	}

	// Ensure default network bridge exists and iptables rules are configured
	// createBridge is idempotent - handles both new and existing bridges
	if err := m.createBridge(ctx, m.config.ServerBridgeName, gateway, m.config.ServerSubnetCIDR); err != nil {
		return fmt.Errorf("setup default network: %w", err)
	}

	owningIDs := make([]string, 0, len(existing))
	for i := range existing {
		a := existing[i]
		m.putAllocation(&a)
		owningIDs = append(owningIDs, a.OwnerID)
	}

	// Cleanup orphaned TAP devices from previous runs (crashes, power loss, etc.)
	if deleted := m.CleanupOrphanedTAPs(ctx, owningIDs); deleted > 0 {
		log.InfoContext(ctx, "cleaned up orphaned TAP devices", "count", deleted)
	}

	log.InfoContext(ctx, "network manager initialized")
	return nil
}

// getDefaultNetwork gets the default network details from kernel state
func (m *manager) getDefaultNetwork(ctx context.Context) (*Network, error) {
	// Query from kernel
	state, err := m.queryNetworkState(m.config.ServerBridgeName)
	if err != nil {
		return nil, ErrNotFound
	}

	return &Network{
		Name:      "default",
		Subnet:    state.Subnet,
		Gateway:   state.Gateway,
		Bridge:    m.config.ServerBridgeName,
		Isolated:  true,
		Default:   true,
		CreatedAt: time.Time{}, // Unknown for default
	}, nil
}
