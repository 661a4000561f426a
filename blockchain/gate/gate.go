// Package gate implements the double-vote gate: a hash-chained
// authorization ledger that authorizes each voter once and lets each
// authorized voter be marked as voted at most once.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"blind-voting/log"
	"blind-voting/models"
	"blind-voting/storage"
)

var (
	ErrNotAuthorized     = errors.New("voter is not authorized")
	ErrAlreadyAuthorized = errors.New("voter already authorized")
	ErrNotVoted          = errors.New("voter has not voted")
	ErrInvalidBallot     = errors.New("invalid ballot index")
	// ErrUnavailable wraps any failure to reach or persist the ledger.
	ErrUnavailable = errors.New("authorization ledger unavailable")
)

// Gate is the boundary the vote ledger consults before accepting a vote.
type Gate interface {
	// Authorize grants voterID the right to vote once and returns the
	// address bound to it.
	Authorize(ctx context.Context, voterID string) (common.Address, error)
	// TryMarkVoted atomically flips has_voted from false to true. It
	// returns false if the voter had already voted.
	TryMarkVoted(ctx context.Context, voterID string, ballotIndex uint64) (bool, error)
	// Revoke undoes a TryMarkVoted whose vote could not be committed.
	Revoke(ctx context.Context, voterID string) error
	HasVoted(ctx context.Context, voterID string) (bool, error)
}

type voterState struct {
	address common.Address
	voted   bool
}

// Ledger implements Gate on top of a storage.Store chain.
type Ledger struct {
	mu         sync.Mutex
	store      storage.Store
	blocks     []*models.Block
	voters     map[common.Hash]*voterState
	ballots    uint64
	difficulty uint8
}

var _ Gate = (*Ledger)(nil)

// New loads and replays the gate chain. ballots is the number of valid
// ballot indexes (candidates are zero-indexed on the gate).
func New(store storage.Store, ballots uint64, difficulty uint8) (*Ledger, error) {
	blocks, err := store.LoadChain(storage.ChainGate)
	if err != nil {
		return nil, fmt.Errorf("failed to load gate chain: %w", err)
	}
	if err := models.ValidateChain(blocks); err != nil {
		return nil, fmt.Errorf("gate chain is corrupt: %w", err)
	}

	l := &Ledger{
		store:      store,
		blocks:     blocks,
		voters:     make(map[common.Hash]*voterState),
		ballots:    ballots,
		difficulty: difficulty,
	}
	for _, block := range blocks {
		var event models.GateEvent
		if err := json.Unmarshal(block.Data, &event); err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Index, err)
		}
		if err := l.apply(event); err != nil {
			return nil, fmt.Errorf("block %d: %w", block.Index, err)
		}
	}
	log.Infof("gate ledger loaded with %d blocks and %d authorized voters", len(blocks), len(l.voters))
	return l, nil
}

// VoterHash is the only form in which a voter identity reaches the chain.
func VoterHash(voterID string) common.Hash {
	return crypto.Keccak256Hash([]byte(voterID))
}

func (l *Ledger) apply(event models.GateEvent) error {
	state := l.voters[event.VoterHash]
	switch event.Kind {
	case models.GateAuthorized:
		if state != nil {
			return ErrAlreadyAuthorized
		}
		l.voters[event.VoterHash] = &voterState{address: event.Address}
	case models.GateVoted:
		if state == nil {
			return ErrNotAuthorized
		}
		state.voted = true
	case models.GateRevoked:
		if state == nil || !state.voted {
			return ErrNotVoted
		}
		state.voted = false
	default:
		return fmt.Errorf("unknown gate event %q", event.Kind)
	}
	return nil
}

// commit persists event as the next block and only then applies it.
func (l *Ledger) commit(event models.GateEvent) error {
	event.Timestamp = time.Now().Unix()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal gate event: %w", err)
	}
	block := models.NextBlock(l.blocks, data, l.difficulty)
	if err := l.store.SaveBlock(storage.ChainGate, block); err != nil {
		log.Warnf("failed to persist gate event %s: %v", event.Kind, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.blocks = append(l.blocks, block)
	return l.apply(event)
}

func (l *Ledger) Authorize(ctx context.Context, voterID string) (common.Address, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	h := VoterHash(voterID)
	if _, exists := l.voters[h]; exists {
		return common.Address{}, ErrAlreadyAuthorized
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to generate voter account: %w", err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	if err := l.commit(models.GateEvent{Kind: models.GateAuthorized, VoterHash: h, Address: address}); err != nil {
		return common.Address{}, err
	}
	return address, nil
}

func (l *Ledger) TryMarkVoted(ctx context.Context, voterID string, ballotIndex uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	state, exists := l.voters[VoterHash(voterID)]
	if !exists {
		return false, ErrNotAuthorized
	}
	if state.voted {
		return false, nil
	}
	if ballotIndex >= l.ballots {
		return false, fmt.Errorf("%w: %d", ErrInvalidBallot, ballotIndex)
	}
	// The ballot index is checked but not written to the chain, so the
	// gate log cannot link a voter to a choice.
	if err := l.commit(models.GateEvent{Kind: models.GateVoted, VoterHash: VoterHash(voterID)}); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Ledger) Revoke(ctx context.Context, voterID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := VoterHash(voterID)
	state, exists := l.voters[h]
	if !exists {
		return ErrNotAuthorized
	}
	if !state.voted {
		return ErrNotVoted
	}
	return l.commit(models.GateEvent{Kind: models.GateRevoked, VoterHash: h})
}

func (l *Ledger) HasVoted(ctx context.Context, voterID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	state, exists := l.voters[VoterHash(voterID)]
	if !exists {
		return false, ErrNotAuthorized
	}
	return state.voted, nil
}

// Address returns the address bound to an authorized voter.
func (l *Ledger) Address(voterID string) (common.Address, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.voters[VoterHash(voterID)]
	if !ok {
		return common.Address{}, false
	}
	return state.address, true
}

// Stats returns the number of authorized voters and of voters marked as voted.
func (l *Ledger) Stats() (authorized, voted int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.voters {
		if s.voted {
			voted++
		}
	}
	return len(l.voters), voted
}

// Blocks returns a copy of the chain.
func (l *Ledger) Blocks() []*models.Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}
