package blindsig

import (
	"math/big"
)

// Signature is the authority's signature over a blinded ballot.
type Signature struct {
	Value *big.Int
}

// Authority owns the election key and signs blinded ballots. It has no
// mutable state and is safe for concurrent use.
type Authority struct {
	key *KeyPair
}

// NewAuthority wraps a validated key pair.
func NewAuthority(key *KeyPair) *Authority {
	return &Authority{key: key}
}

// PublicKey returns a copy of (n, e) for publication.
func (a *Authority) PublicKey() PublicKey {
	return PublicKey{
		N: new(big.Int).Set(a.key.N),
		E: new(big.Int).Set(a.key.E),
	}
}

// Sign returns blinded^d mod n. The authority cannot tell what it signs,
// so the only check is 0 ≤ blinded < n.
func (a *Authority) Sign(blinded BlindedBallot) (Signature, error) {
	if err := checkRange("blinded ballot", blinded.Value, big.NewInt(0), a.key.N); err != nil {
		return Signature{}, err
	}
	return Signature{Value: new(big.Int).Exp(blinded.Value, a.key.d, a.key.N)}, nil
}
