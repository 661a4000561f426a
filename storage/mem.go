package storage

import (
	"sync"

	"blind-voting/models"
)

var _ Store = (*MemStore)(nil)

// MemStore implements a minimal in memory Store for unit testing.
type MemStore struct {
	mu         sync.Mutex
	chains     map[string][]*models.Block
	failWrites error
}

func NewMemStore() *MemStore {
	return &MemStore{chains: map[string][]*models.Block{}}
}

func (m *MemStore) SaveBlock(chain string, block *models.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	if m.chains == nil {
		return ErrClosed
	}
	m.chains[chain] = append(m.chains[chain], block)
	return nil
}

func (m *MemStore) LoadChain(chain string) ([]*models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chains == nil {
		return nil, ErrClosed
	}
	blocks := make([]*models.Block, len(m.chains[chain]))
	copy(blocks, m.chains[chain])
	return blocks, nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains = nil
	return nil
}

// SetFailWrites makes every following SaveBlock return err until it is
// reset with nil.
func (m *MemStore) SetFailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}
