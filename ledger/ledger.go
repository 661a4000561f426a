// Package ledger holds the append-only set of accepted vote records and
// runs the cast sequence that produces them.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"blind-voting/blindsig"
	"blind-voting/blockchain/gate"
	"blind-voting/log"
	"blind-voting/models"
	"blind-voting/registry"
	"blind-voting/storage"
)

var (
	// ErrDoubleVote is returned when the voter identity was already marked
	// as voted. Nothing is blinded, signed or stored.
	ErrDoubleVote = errors.New("voter has already voted")
	// ErrVerificationFailure means the unblinded signature did not verify
	// against the ballot. The voter's gate mark is rolled back.
	ErrVerificationFailure = errors.New("signature verification failed")
	// ErrLedgerUnavailable is returned when the gate or the record store
	// cannot be reached. The attempt commits nothing and may be retried.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Signer is the authority side of the protocol.
type Signer interface {
	PublicKey() blindsig.PublicKey
	Sign(blinded blindsig.BlindedBallot) (blindsig.Signature, error)
}

type Options struct {
	Candidates *registry.Candidates
	Store      storage.Store
	// Random is the source of blinding factors, crypto/rand when nil.
	Random     io.Reader
	Difficulty uint8
}

// VoteLedger records votes anonymously. All appends go through one
// writer lock, readers never observe a partial append.
type VoteLedger struct {
	signer     Signer
	gate       gate.Gate
	candidates *registry.Candidates
	store      storage.Store
	random     io.Reader
	difficulty uint8

	mu      sync.RWMutex
	blocks  []*models.Block
	records []models.VoteRecord
}

// New creates a ledger and restores previously committed records from
// the store.
func New(signer Signer, g gate.Gate, opts Options) (*VoteLedger, error) {
	if opts.Candidates == nil {
		return nil, errors.New("ledger requires a candidate registry")
	}
	if opts.Store == nil {
		opts.Store = storage.NewMemStore()
	}
	if opts.Random == nil {
		opts.Random = rand.Reader
	}
	pub := signer.PublicKey()
	if limit := new(big.Int).SetUint64(uint64(opts.Candidates.MaxCode())); limit.Cmp(pub.N) >= 0 {
		return nil, fmt.Errorf("modulus too small for %d candidates", opts.Candidates.Len())
	}

	l := &VoteLedger{
		signer:     signer,
		gate:       g,
		candidates: opts.Candidates,
		store:      opts.Store,
		random:     opts.Random,
		difficulty: opts.Difficulty,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *VoteLedger) load() error {
	blocks, err := l.store.LoadChain(storage.ChainRecords)
	if err != nil {
		return fmt.Errorf("failed to load record chain: %w", err)
	}
	if err := models.ValidateChain(blocks); err != nil {
		return fmt.Errorf("record chain is corrupt: %w", err)
	}
	records := make([]models.VoteRecord, 0, len(blocks))
	for _, block := range blocks {
		var record models.VoteRecord
		if err := json.Unmarshal(block.Data, &record); err != nil {
			return fmt.Errorf("block %d: %w", block.Index, err)
		}
		records = append(records, record)
	}
	l.blocks = blocks
	l.records = records
	log.Infof("vote ledger loaded with %d records", len(records))
	return nil
}

// Cast runs the full vote sequence for one voter: range check, gate
// check-and-set, blind, sign, unblind, verify and append. It either
// commits exactly one record or leaves the ledger unchanged.
func (l *VoteLedger) Cast(ctx context.Context, voterID string, code uint32) (models.VoteRecord, error) {
	pub := l.signer.PublicKey()
	ballot := new(big.Int).SetUint64(uint64(code))
	if _, ok := l.candidates.Name(code); !ok {
		return models.VoteRecord{}, &blindsig.RangeError{
			Field: "ballot",
			Min:   big.NewInt(1),
			Max:   new(big.Int).SetUint64(uint64(l.candidates.MaxCode()) + 1),
			Value: ballot,
		}
	}

	marked, err := l.gate.TryMarkVoted(ctx, voterID, uint64(code-1))
	switch {
	case errors.Is(err, gate.ErrUnavailable):
		return models.VoteRecord{}, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	case err != nil:
		return models.VoteRecord{}, fmt.Errorf("cast rejected: %w", err)
	case !marked:
		return models.VoteRecord{}, ErrDoubleVote
	}

	signature, err := l.sign(ballot, pub)
	if err != nil {
		return models.VoteRecord{}, l.rollback(ctx, voterID, err)
	}

	record := models.VoteRecord{
		ID:        uuid.New().String(),
		Ballot:    ballot,
		Signature: signature.Value,
	}
	if err := l.append(record); err != nil {
		return models.VoteRecord{}, l.rollback(ctx, voterID, err)
	}
	return record, nil
}

// sign performs the voter and authority halves of the protocol and
// checks the result. The blinding factor never leaves this function.
func (l *VoteLedger) sign(ballot *big.Int, pub blindsig.PublicKey) (blindsig.UnblindedSignature, error) {
	blinded, factor, err := blindsig.Blind(l.random, ballot, pub)
	if err != nil {
		return blindsig.UnblindedSignature{}, err
	}
	signature, err := l.signer.Sign(blinded)
	if err != nil {
		return blindsig.UnblindedSignature{}, err
	}
	unblinded, err := blindsig.Unblind(signature, factor, pub)
	if err != nil {
		return blindsig.UnblindedSignature{}, err
	}
	if !blindsig.Verify(pub, unblinded, ballot) {
		return blindsig.UnblindedSignature{}, ErrVerificationFailure
	}
	return unblinded, nil
}

func (l *VoteLedger) append(record models.VoteRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	block := models.NextBlock(l.blocks, data, l.difficulty)
	if err := l.store.SaveBlock(storage.ChainRecords, block); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	l.blocks = append(l.blocks, block)
	l.records = append(l.records, record)
	return nil
}

// rollback releases the voter's gate mark after a failed attempt.
func (l *VoteLedger) rollback(ctx context.Context, voterID string, cause error) error {
	if err := l.gate.Revoke(context.WithoutCancel(ctx), voterID); err != nil {
		log.Errorf("failed to roll back gate mark after %v: %v", cause, err)
		return errors.Join(cause, err)
	}
	log.Warnf("vote attempt rolled back: %v", cause)
	return cause
}

// Records returns a copy of the committed records in commit order.
func (l *VoteLedger) Records() []models.VoteRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.VoteRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *VoteLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Blocks returns a copy of the record chain.
func (l *VoteLedger) Blocks() []*models.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Audit re-verifies every stored record against pub and returns the IDs
// of the records that fail.
func Audit(pub blindsig.PublicKey, records []models.VoteRecord) []string {
	var invalid []string
	for _, r := range records {
		if r.Ballot == nil || r.Signature == nil ||
			!blindsig.Verify(pub, blindsig.UnblindedSignature{Value: r.Signature}, r.Ballot) {
			invalid = append(invalid, r.ID)
		}
	}
	return invalid
}
