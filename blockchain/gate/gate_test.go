package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blind-voting/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MemStore) {
	t.Helper()
	store := storage.NewMemStore()
	l, err := New(store, 3, 0)
	require.NoError(t, err)
	return l, store
}

func TestAuthorizeOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	addr, err := l.Authorize(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, addr)

	_, err = l.Authorize(ctx, "alice")
	assert.ErrorIs(t, err, ErrAlreadyAuthorized)

	other, err := l.Authorize(ctx, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)

	got, ok := l.Address("alice")
	require.True(t, ok)
	assert.Equal(t, addr, got)
}

func TestTryMarkVoted(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.TryMarkVoted(ctx, "mallory", 0)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = l.Authorize(ctx, "alice")
	require.NoError(t, err)

	_, err = l.TryMarkVoted(ctx, "alice", 3)
	assert.ErrorIs(t, err, ErrInvalidBallot)

	ok, err := l.TryMarkVoted(ctx, "alice", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryMarkVoted(ctx, "alice", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	voted, err := l.HasVoted(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestRevoke(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Authorize(ctx, "alice")
	require.NoError(t, err)
	assert.ErrorIs(t, l.Revoke(ctx, "alice"), ErrNotVoted)

	ok, err := l.TryMarkVoted(ctx, "alice", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Revoke(ctx, "alice"))

	voted, err := l.HasVoted(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, voted)

	ok, err = l.TryMarkVoted(ctx, "alice", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentMarkIsExclusive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Authorize(ctx, "alice")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryMarkVoted(ctx, "alice", 0)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestStoreFailureLeavesStateUnchanged(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	_, err := l.Authorize(ctx, "alice")
	require.NoError(t, err)

	store.SetFailWrites(errors.New("disk full"))
	_, err = l.TryMarkVoted(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = l.Authorize(ctx, "bob")
	assert.ErrorIs(t, err, ErrUnavailable)

	store.SetFailWrites(nil)
	voted, err := l.HasVoted(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, voted)
	_, ok := l.Address("bob")
	assert.False(t, ok)
	assert.Len(t, l.Blocks(), 1)
}

func TestCanceledContext(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Authorize(ctx, "alice")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = l.TryMarkVoted(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReplay(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := l.Authorize(ctx, id)
		require.NoError(t, err)
	}
	_, err := l.TryMarkVoted(ctx, "alice", 0)
	require.NoError(t, err)
	_, err = l.TryMarkVoted(ctx, "bob", 2)
	require.NoError(t, err)
	require.NoError(t, l.Revoke(ctx, "bob"))

	reloaded, err := New(store, 3, 0)
	require.NoError(t, err)

	authorized, voted := reloaded.Stats()
	assert.Equal(t, 3, authorized)
	assert.Equal(t, 1, voted)

	addr, _ := l.Address("carol")
	got, _ := reloaded.Address("carol")
	assert.Equal(t, addr, got)

	ok, err := reloaded.TryMarkVoted(ctx, "alice", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVoterHashHidesIdentity(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Authorize(context.Background(), "alice@example.org")
	require.NoError(t, err)
	for _, b := range l.Blocks() {
		assert.NotContains(t, string(b.Data), "alice@example.org")
	}
}
