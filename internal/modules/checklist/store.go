package checklist

import "sync"

// Store mirrors the last known checklist state per deal. The CRM remains
// the source of truth; the mirror exists so reads survive upstream
// outages and so operators can inspect recent saves.
type Store interface {
	Get(dealID string) (*State, error)
	Put(dealID string, state *State) error
	Delete(dealID string) error
	ListDealIDs() ([]string, error)
}

// MemoryStore is a Store backed by a mutex-guarded map. Used when no data
// directory is configured and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore creates an empty in-memory mirror.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Get returns the mirrored state for a deal, or nil when none is held.
func (m *MemoryStore) Get(dealID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[dealID]
	if !ok {
		return nil, nil
	}
	return copyState(state), nil
}

// Put stores a copy of the state for a deal.
func (m *MemoryStore) Put(dealID string, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[dealID] = copyState(state)
	return nil
}

// Delete removes the mirrored state for a deal.
func (m *MemoryStore) Delete(dealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, dealID)
	return nil
}

// copyState clones a state including its ItemStatuses map, so callers
// mutating the original or the returned value never alias store contents.
func copyState(state *State) *State {
	copied := *state
	if state.ItemStatuses != nil {
		copied.ItemStatuses = make(map[string]string, len(state.ItemStatuses))
		for k, v := range state.ItemStatuses {
			copied.ItemStatuses[k] = v
		}
	}
	return &copied
}

// ListDealIDs returns the deal IDs with mirrored state.
func (m *MemoryStore) ListDealIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids, nil
}
