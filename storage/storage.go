package storage

import (
	"errors"
	"fmt"

	"blind-voting/models"
)

// Chain names used by the service.
const (
	ChainGate    = "gate"
	ChainRecords = "records"
)

// Backend types accepted by Open.
const (
	TypeJSON   = "json"
	TypePebble = "pebble"
	TypeMemory = "memory"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store persists hash-chained blocks grouped by chain name. All methods
// are safe for concurrent use.
type Store interface {
	// SaveBlock appends block to the named chain.
	SaveBlock(chain string, block *models.Block) error
	// LoadChain returns the blocks of the named chain in index order.
	// Unknown chains are empty.
	LoadChain(chain string) ([]*models.Block, error)
	Close() error
}

// Open returns a store of the given type rooted at path.
func Open(kind, path string) (Store, error) {
	switch kind {
	case TypeJSON, "":
		return NewJSONStore(path)
	case TypePebble:
		return NewPebbleStore(path)
	case TypeMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", kind)
	}
}
