package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// GateEventKind names a state transition of the authorization gate.
type GateEventKind string

const (
	GateAuthorized GateEventKind = "authorized"
	GateVoted      GateEventKind = "voted"
	GateRevoked    GateEventKind = "revoked"
)

// GateEvent is the block payload of the authorization chain. Voters are
// only referenced by the Keccak-256 hash of their identity.
type GateEvent struct {
	Kind      GateEventKind  `json:"kind"`
	VoterHash common.Hash    `json:"voter_hash"`
	Address   common.Address `json:"address,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// VoterRegistration is returned to a voter after registration.
type VoterRegistration struct {
	VoterID   string         `json:"voter_id"`
	Address   common.Address `json:"address"`
	Timestamp int64          `json:"timestamp"`
}
