package models

import (
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// VoteRecord is an accepted vote as stored in the ledger: the plaintext
// ballot code and the unblinded authority signature over it. It carries
// no voter identity.
type VoteRecord struct {
	ID        string
	Ballot    *big.Int
	Signature *big.Int
}

type voteRecordJSON struct {
	ID        string        `json:"id"`
	Ballot    hexutil.Bytes `json:"ballot"`
	Signature hexutil.Bytes `json:"signature"`
}

func (r VoteRecord) MarshalJSON() ([]byte, error) {
	if r.Ballot == nil || r.Signature == nil {
		return nil, errors.New("incomplete vote record")
	}
	return json.Marshal(voteRecordJSON{
		ID:        r.ID,
		Ballot:    r.Ballot.Bytes(),
		Signature: r.Signature.Bytes(),
	})
}

func (r *VoteRecord) UnmarshalJSON(data []byte) error {
	var raw voteRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Ballot = new(big.Int).SetBytes(raw.Ballot)
	r.Signature = new(big.Int).SetBytes(raw.Signature)
	return nil
}

// BallotCode returns the ballot as a candidate code, false if it does not fit.
func (r VoteRecord) BallotCode() (uint32, bool) {
	if r.Ballot == nil || r.Ballot.Sign() <= 0 || r.Ballot.BitLen() > 32 {
		return 0, false
	}
	return uint32(r.Ballot.Uint64()), true
}
