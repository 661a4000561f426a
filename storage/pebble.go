package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"

	"blind-voting/models"
)

var _ Store = (*PebbleStore)(nil)

// PebbleStore keeps blocks in a pebble LSM. Keys are
// "chain/<name>/b/<index big endian>" for blocks and "chain/<name>/len"
// for the chain length, both written in one batch.
type PebbleStore struct {
	mu sync.Mutex // serializes appends so index and length stay in step
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, err
	}
	o := &pebble.Options{
		Levels: []pebble.LevelOptions{
			{
				Compression: pebble.SnappyCompression,
			},
		},
	}
	db, err := pebble.Open(path, o)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func lengthKey(chain string) []byte {
	return []byte("chain/" + chain + "/len")
}

func blockKey(chain string, index uint64) []byte {
	key := []byte("chain/" + chain + "/b/")
	return binary.BigEndian.AppendUint64(key, index)
}

func (s *PebbleStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// The returned slice is only valid until Close is called.
	v2 := make([]byte, len(v))
	copy(v2, v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return v2, nil
}

func (s *PebbleStore) length(chain string) (uint64, error) {
	v, err := s.get(lengthKey(chain))
	if err != nil || v == nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt length for chain %s", chain)
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *PebbleStore) SaveBlock(chain string, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	n, err := s.length(chain)
	if err != nil {
		return err
	}
	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to marshal block: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(chain, n), data, nil); err != nil {
		return err
	}
	if err := batch.Set(lengthKey(chain), binary.BigEndian.AppendUint64(nil, n+1), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit block: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadChain(chain string) ([]*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	n, err := s.length(chain)
	if err != nil {
		return nil, err
	}
	blocks := make([]*models.Block, 0, n)
	for i := uint64(0); i < n; i++ {
		data, err := s.get(blockKey(chain, i))
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, fmt.Errorf("chain %s: missing block %d", chain, i)
		}
		var block models.Block
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, fmt.Errorf("failed to unmarshal block %d: %w", i, err)
		}
		blocks = append(blocks, &block)
	}
	return blocks, nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
