package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blind-voting/models"
)

func appendBlocks(t *testing.T, s Store, chain string, n int) []*models.Block {
	t.Helper()
	var blocks []*models.Block
	for i := 0; i < n; i++ {
		b := models.NextBlock(blocks, []byte{byte(i)}, 0)
		require.NoError(t, s.SaveBlock(chain, b))
		blocks = append(blocks, b)
	}
	return blocks
}

func testStore(t *testing.T, open func() Store) {
	s := open()
	empty, err := s.LoadChain(ChainRecords)
	require.NoError(t, err)
	assert.Empty(t, empty)

	written := appendBlocks(t, s, ChainRecords, 3)
	appendBlocks(t, s, ChainGate, 1)

	loaded, err := s.LoadChain(ChainRecords)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i := range written {
		assert.Equal(t, written[i].Hash, loaded[i].Hash)
		assert.Equal(t, written[i].Data, loaded[i].Data)
	}
	require.NoError(t, models.ValidateChain(loaded))

	gate, err := s.LoadChain(ChainGate)
	require.NoError(t, err)
	assert.Len(t, gate, 1)

	require.NoError(t, s.Close())
	_, err = s.LoadChain(ChainRecords)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestJSONStore(t *testing.T) {
	dir := t.TempDir()
	testStore(t, func() Store {
		s, err := NewJSONStore(dir)
		require.NoError(t, err)
		return s
	})

	// Reopening reads the chains back from disk.
	s, err := NewJSONStore(dir)
	require.NoError(t, err)
	blocks, err := s.LoadChain(ChainRecords)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
}

func TestPebbleStore(t *testing.T) {
	dir := t.TempDir()
	testStore(t, func() Store {
		s, err := NewPebbleStore(dir)
		require.NoError(t, err)
		return s
	})

	s, err := NewPebbleStore(dir)
	require.NoError(t, err)
	defer s.Close()
	blocks, err := s.LoadChain(ChainRecords)
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
}

func TestMemStore(t *testing.T) {
	testStore(t, func() Store { return NewMemStore() })

	s := NewMemStore()
	boom := errors.New("disk full")
	s.SetFailWrites(boom)
	assert.ErrorIs(t, s.SaveBlock(ChainGate, models.NextBlock(nil, nil, 0)), boom)
}

func TestOpenUnknownType(t *testing.T) {
	_, err := Open("sqlite", t.TempDir())
	assert.Error(t, err)
}
