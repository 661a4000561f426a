package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"blind-voting/models"
)

var _ Store = (*JSONStore)(nil)

// Chain is the on-disk form of one chain file.
type Chain struct {
	Blocks []*models.Block `json:"blocks"`
}

// JSONStore keeps every chain in memory and rewrites <chain>_chain.json
// on each append.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	chains   map[string]*Chain
	closed   bool
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &JSONStore{
		basePath: basePath,
		chains:   make(map[string]*Chain),
	}, nil
}

func (s *JSONStore) SaveBlock(chainType string, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	chain, err := s.chainLocked(chainType)
	if err != nil {
		return err
	}

	next := &Chain{Blocks: append(append(make([]*models.Block, 0, len(chain.Blocks)+1), chain.Blocks...), block)}
	if err := s.saveChainToFile(chainType, next); err != nil {
		return err
	}
	s.chains[chainType] = next
	return nil
}

func (s *JSONStore) LoadChain(chainType string) ([]*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	chain, err := s.chainLocked(chainType)
	if err != nil {
		return nil, err
	}

	blocks := make([]*models.Block, len(chain.Blocks))
	copy(blocks, chain.Blocks)
	return blocks, nil
}

func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// chainLocked returns the cached chain, reading it from disk on first use.
func (s *JSONStore) chainLocked(chainType string) (*Chain, error) {
	if chain, ok := s.chains[chainType]; ok {
		return chain, nil
	}
	chain, err := s.loadChainFromFile(chainType)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain %s: %w", chainType, err)
	}
	s.chains[chainType] = chain
	return chain, nil
}

func (s *JSONStore) chainPath(chainType string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s_chain.json", chainType))
}

func (s *JSONStore) loadChainFromFile(chainType string) (*Chain, error) {
	data, err := os.ReadFile(s.chainPath(chainType))
	if err != nil {
		if os.IsNotExist(err) {
			return &Chain{Blocks: make([]*models.Block, 0)}, nil
		}
		return nil, err
	}

	var chain Chain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chain: %w", err)
	}
	return &chain, nil
}

func (s *JSONStore) saveChainToFile(chainType string, chain *Chain) error {
	path := s.chainPath(chainType)

	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}

	// Write to temporary file first
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write chain file: %w", err)
	}

	// Atomic rename to ensure consistency
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save chain file: %w", err)
	}

	return nil
}
