package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"blind-voting/blindsig"
	"blind-voting/blockchain/gate"
	"blind-voting/ledger"
	"blind-voting/log"
	"blind-voting/models"
	"blind-voting/registry"
	"blind-voting/storage"
	"blind-voting/tally"
)

const authorityKeyFile = "authority_key.json"

var (
	ErrSessionClosed     = errors.New("voting session has ended")
	ErrAlreadyRegistered = errors.New("voter has already registered for voting")
)

// Config describes one election.
type Config struct {
	DataDir     string
	StorageType string
	Candidates  []string
	// VotersFile is a registry file relative to DataDir unless absolute.
	// It is ignored when Voters is set.
	VotersFile string
	Voters     []string
	// SessionDuration of zero keeps the session open until EndVotingSession.
	SessionDuration time.Duration
	KeyOptions      blindsig.Options
	// Key overrides loading or generating the authority key.
	Key        *blindsig.KeyPair
	Difficulty uint8
}

// VotingService is the context of one election: it owns the authority
// key, the gate, the vote ledger and the session.
type VotingService struct {
	store         storage.Store
	authority     *blindsig.Authority
	gate          *gate.Ledger
	ledger        *ledger.VoteLedger
	candidates    *registry.Candidates
	verification  *VoterVerificationService
	votingSession *VotingSession
	anonymizer    *AnonymizationService
	metrics       *MetricsCollector

	// regMu serializes registration so eligibility and authorization are
	// checked together.
	regMu sync.Mutex
}

// ResultsResponse is the tally together with the integrity checks run
// on it.
type ResultsResponse struct {
	tally.Summary
	SessionActive bool `json:"session_active"`
	// Conserved is true if the counts add up to the resolvable records.
	Conserved bool `json:"conserved"`
	// GateVoted is the number of identities marked as voted on the gate,
	// it must equal TotalVotes.
	GateVoted  int  `json:"gate_voted"`
	Consistent bool `json:"consistent"`
}

// VoterStatistics only reports aggregates, never identities.
type VoterStatistics struct {
	RegisteredCount int `json:"registered_count"`
	VotedCount      int `json:"voted_count"`
	RecordCount     int `json:"record_count"`
}

type BlockchainResponse struct {
	ChainType  string          `json:"chain_type"`
	BlockCount int             `json:"block_count"`
	Blocks     []*models.Block `json:"blocks"`
	IsValid    bool            `json:"is_valid"`
	LastHash   string          `json:"last_hash"`
}

// LoadOrGenerateAuthorityKey reads the election key from dataDir or
// creates and saves a new one. A key file that fails validation is an
// error wrapping blindsig.ErrCorruptKey.
func LoadOrGenerateAuthorityKey(dataDir string, opts blindsig.Options) (*blindsig.KeyPair, error) {
	keyPath := filepath.Join(dataDir, authorityKeyFile)

	if data, err := os.ReadFile(keyPath); err == nil {
		key, err := blindsig.DecodePrivate(data)
		if err != nil {
			return nil, fmt.Errorf("failed to restore authority key: %w", err)
		}
		log.Infof("loaded authority key %s", key.Fingerprint().Hex())
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read authority key: %w", err)
	}

	key, err := blindsig.GenerateKey(nil, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authority key: %w", err)
	}
	data, err := blindsig.EncodePrivate(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode authority key: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(keyPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save authority key: %w", err)
	}
	log.Infof("generated %d-bit authority key %s", key.Size(), key.Fingerprint().Hex())
	return key, nil
}

func NewVotingService(cfg Config) (*VotingService, error) {
	candidates, err := registry.NewCandidates(cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("invalid candidate list: %w", err)
	}

	voters, err := openVoterRegistry(cfg)
	if err != nil {
		return nil, err
	}

	key := cfg.Key
	if key == nil {
		if key, err = LoadOrGenerateAuthorityKey(cfg.DataDir, cfg.KeyOptions); err != nil {
			return nil, err
		}
	}

	store, err := storage.Open(cfg.StorageType, filepath.Join(cfg.DataDir, "chains"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	g, err := gate.New(store, uint64(candidates.Len()), cfg.Difficulty)
	if err != nil {
		store.Close()
		return nil, err
	}

	authority := blindsig.NewAuthority(key)
	votes, err := ledger.New(authority, g, ledger.Options{
		Candidates: candidates,
		Store:      store,
		Difficulty: cfg.Difficulty,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	vs := &VotingService{
		store:         store,
		authority:     authority,
		gate:          g,
		ledger:        votes,
		candidates:    candidates,
		verification:  NewVoterVerificationService(voters),
		votingSession: NewVotingSession(cfg.SessionDuration),
		anonymizer:    NewAnonymizationService(),
		metrics:       NewMetricsCollector(),
	}
	vs.metrics.records.Set(float64(votes.Len()))

	if invalid := ledger.Audit(authority.PublicKey(), votes.Records()); len(invalid) > 0 {
		log.Warnf("%d stored records fail verification", len(invalid))
	}
	return vs, nil
}

func openVoterRegistry(cfg Config) (registry.VoterRegistry, error) {
	if len(cfg.Voters) > 0 {
		return registry.NewStaticVoterRegistry(cfg.Voters...), nil
	}
	path := cfg.VotersFile
	if path == "" {
		path = "voters_registry.json"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.DataDir, path)
	}
	voters, err := registry.NewFileVoterRegistry(registry.RegistryConfig{VotersFilePath: path})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize voter registry: %w", err)
	}
	log.Infof("voter registry %s loaded with %d voters", path, voters.Len())
	return voters, nil
}

// RegisterVoter authorizes an eligible voter on the gate. Each identity
// can register once.
func (vs *VotingService) RegisterVoter(ctx context.Context, voterID string) (*models.VoterRegistration, error) {
	vs.regMu.Lock()
	defer vs.regMu.Unlock()

	if !vs.votingSession.IsActive() {
		vs.metrics.RecordRegistration(resultRejected)
		return nil, ErrSessionClosed
	}
	if err := vs.verification.VerifyVoter(voterID); err != nil {
		vs.metrics.RecordRegistration(resultRejected)
		return nil, err
	}

	address, err := vs.gate.Authorize(ctx, voterID)
	switch {
	case errors.Is(err, gate.ErrAlreadyAuthorized):
		vs.metrics.RecordRegistration(resultRejected)
		return nil, ErrAlreadyRegistered
	case errors.Is(err, gate.ErrUnavailable):
		vs.metrics.RecordRegistration(resultUnavailable)
		return nil, fmt.Errorf("%w: %w", ledger.ErrLedgerUnavailable, err)
	case err != nil:
		vs.metrics.RecordRegistration(resultRejected)
		return nil, err
	}

	vs.metrics.RecordRegistration(resultOK)
	return &models.VoterRegistration{
		VoterID:   voterID,
		Address:   address,
		Timestamp: time.Now().Unix(),
	}, nil
}

// CastVote records one vote for the candidate with the given code.
func (vs *VotingService) CastVote(ctx context.Context, voterID string, code uint32) (models.VoteRecord, error) {
	start := time.Now()
	record, err := vs.castVote(ctx, voterID, code)
	vs.metrics.RecordVote(voteResult(err), time.Since(start), vs.ledger.Len())
	if err != nil {
		log.Debugf("vote rejected: %v", err)
	}
	return record, err
}

func (vs *VotingService) castVote(ctx context.Context, voterID string, code uint32) (models.VoteRecord, error) {
	if !vs.votingSession.IsActive() {
		return models.VoteRecord{}, ErrSessionClosed
	}
	if err := vs.verification.VerifyVoter(voterID); err != nil {
		return models.VoteRecord{}, err
	}
	return vs.ledger.Cast(ctx, voterID, code)
}

func voteResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ledger.ErrDoubleVote):
		return resultDoubleVote
	case errors.Is(err, ledger.ErrVerificationFailure):
		return resultVerification
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return resultUnavailable
	default:
		return resultRejected
	}
}

// PublicKey returns (n, e) for third party verification.
func (vs *VotingService) PublicKey() blindsig.PublicKey {
	return vs.authority.PublicKey()
}

func (vs *VotingService) Candidates() []models.Candidate {
	return vs.candidates.List()
}

// PublishedRecords returns every record in a random order.
func (vs *VotingService) PublishedRecords() ([]models.VoteRecord, error) {
	return vs.anonymizer.Shuffle(vs.ledger.Records())
}

// VerifyRecord checks a record against the authority public key. It does
// not require the record to be in the ledger.
func (vs *VotingService) VerifyRecord(record models.VoteRecord) bool {
	return len(ledger.Audit(vs.authority.PublicKey(), []models.VoteRecord{record})) == 0
}

// GetResults tallies the ledger. Results can be read while the session
// is active, the caller decides whether to publish them.
func (vs *VotingService) GetResults() *ResultsResponse {
	start := time.Now()
	records := vs.ledger.Records()
	summary := tally.Summarize(records, vs.candidates)
	counts := tally.Count(records, vs.candidates)
	_, voted := vs.gate.Stats()
	vs.metrics.RecordCounting(time.Since(start))

	resp := &ResultsResponse{
		Summary:       summary,
		SessionActive: vs.votingSession.IsActive(),
		Conserved:     tally.Conserved(records, vs.candidates, counts),
		GateVoted:     voted,
		Consistent:    voted == len(records),
	}
	if !resp.Consistent {
		log.Errorf("gate reports %d voters but the ledger holds %d records", voted, len(records))
	}
	return resp
}

func (vs *VotingService) GetVoterStatistics() *VoterStatistics {
	registered, voted := vs.gate.Stats()
	return &VoterStatistics{
		RegisteredCount: registered,
		VotedCount:      voted,
		RecordCount:     vs.ledger.Len(),
	}
}

// GetChain returns one of the two hash chains with its validation state.
func (vs *VotingService) GetChain(chainType string) (*BlockchainResponse, error) {
	var blocks []*models.Block
	switch chainType {
	case storage.ChainGate:
		blocks = vs.gate.Blocks()
	case storage.ChainRecords:
		blocks = vs.ledger.Blocks()
	default:
		return nil, fmt.Errorf("invalid chain type: %s", chainType)
	}

	resp := &BlockchainResponse{
		ChainType:  chainType,
		BlockCount: len(blocks),
		Blocks:     blocks,
		IsValid:    models.ValidateChain(blocks) == nil,
	}
	if len(blocks) > 0 {
		resp.LastHash = fmt.Sprintf("%x", blocks[len(blocks)-1].Hash)
	}
	return resp, nil
}

func (vs *VotingService) IsVotingActive() bool {
	return vs.votingSession.IsActive()
}

func (vs *VotingService) Session() SessionInfo {
	return vs.votingSession.Info()
}

// EndVotingSession closes registration and casting.
func (vs *VotingService) EndVotingSession() {
	if vs.votingSession.End() {
		log.Infof("voting session ended with %d records", vs.ledger.Len())
	}
}

func (vs *VotingService) Metrics() *MetricsCollector {
	return vs.metrics
}

func (vs *VotingService) Close() error {
	return vs.store.Close()
}
