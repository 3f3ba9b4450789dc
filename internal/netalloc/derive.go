package network

import "context"

// GetAllocation returns the allocation currently held for ownerID, if any.
// Allocations live only in the manager's in-memory table (populated by
// CreateAllocation/RecreateAllocation); durable truth about which VM owns
// which NIC lives in internal/inventory's persisted VM record, per §3's
// ownership model (E owns only transient connection resources).
func (m *manager) GetAllocation(ctx context.Context, ownerID string) (*Allocation, error) {
	m.allocMu.RLock()
	defer m.allocMu.RUnlock()
	alloc, ok := m.allocations[ownerID]
	if !ok {
		return nil, nil
	}
	cp := *alloc
	return &cp, nil
}

// ListAllocations returns every allocation currently tracked.
func (m *manager) ListAllocations(ctx context.Context) ([]Allocation, error) {
	m.allocMu.RLock()
	defer m.allocMu.RUnlock()
	out := make([]Allocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		out = append(out, *a)
	}
	return out, nil
}

// NameExists checks if ownerName is already used in the default network.
func (m *manager) NameExists(ctx context.Context, ownerName string) (bool, error) {
	m.allocMu.RLock()
	defer m.allocMu.RUnlock()
	for _, a := range m.allocations {
		if a.OwnerName == ownerName {
			return true, nil
		}
	}
	return false, nil
}

func (m *manager) putAllocation(a *Allocation) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()
	m.allocations[a.OwnerID] = a
}

func (m *manager) dropAllocation(ownerID string) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()
	delete(m.allocations, ownerID)
}
