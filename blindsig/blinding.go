package blindsig

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// BlindedBallot is (ballot · r^e) mod n, the only form the authority sees.
type BlindedBallot struct {
	Value *big.Int
}

// UnblindedSignature is signature · r⁻¹ mod n. It verifies against the
// plaintext ballot.
type UnblindedSignature struct {
	Value *big.Int
}

// BlindingFactor is the per-vote secret r. It must not be logged,
// persisted or sent anywhere.
type BlindingFactor struct {
	r *big.Int
}

func (BlindingFactor) String() string { return "BlindingFactor(redacted)" }

// GoString keeps %#v from printing r.
func (BlindingFactor) GoString() string { return "BlindingFactor(redacted)" }

// Blind samples r uniformly from [1, n-1] with gcd(r, n) = 1 and returns
// the blinded ballot together with r.
func Blind(random io.Reader, ballot *big.Int, pub PublicKey) (BlindedBallot, BlindingFactor, error) {
	if random == nil {
		random = rand.Reader
	}
	if err := checkBallot(ballot, pub); err != nil {
		return BlindedBallot{}, BlindingFactor{}, err
	}
	upper := new(big.Int).Sub(pub.N, bigOne)
	gcd := new(big.Int)
	for {
		r, err := rand.Int(random, upper)
		if err != nil {
			return BlindedBallot{}, BlindingFactor{}, fmt.Errorf("failed to sample blinding factor: %w", err)
		}
		r.Add(r, bigOne)
		if gcd.GCD(nil, nil, r, pub.N).Cmp(bigOne) != 0 {
			continue
		}
		return blind(ballot, r, pub), BlindingFactor{r: r}, nil
	}
}

// BlindWithFactor blinds with a caller supplied r. It exists for
// deterministic fixtures; production code uses Blind.
func BlindWithFactor(ballot, r *big.Int, pub PublicKey) (BlindedBallot, BlindingFactor, error) {
	if err := checkBallot(ballot, pub); err != nil {
		return BlindedBallot{}, BlindingFactor{}, err
	}
	if err := checkRange("blinding factor", r, bigOne, pub.N); err != nil {
		return BlindedBallot{}, BlindingFactor{}, err
	}
	if new(big.Int).GCD(nil, nil, r, pub.N).Cmp(bigOne) != 0 {
		return BlindedBallot{}, BlindingFactor{}, ErrNotInvertible
	}
	r = new(big.Int).Set(r)
	return blind(ballot, r, pub), BlindingFactor{r: r}, nil
}

func blind(ballot, r *big.Int, pub PublicKey) BlindedBallot {
	v := new(big.Int).Exp(r, pub.E, pub.N)
	v.Mul(v, ballot)
	v.Mod(v, pub.N)
	return BlindedBallot{Value: v}
}

// Unblind removes r from the authority's signature.
func Unblind(sig Signature, factor BlindingFactor, pub PublicKey) (UnblindedSignature, error) {
	if factor.r == nil {
		return UnblindedSignature{}, ErrNotInvertible
	}
	if err := checkRange("signature", sig.Value, big.NewInt(0), pub.N); err != nil {
		return UnblindedSignature{}, err
	}
	inv := new(big.Int).ModInverse(factor.r, pub.N)
	if inv == nil {
		return UnblindedSignature{}, ErrNotInvertible
	}
	inv.Mul(inv, sig.Value)
	inv.Mod(inv, pub.N)
	return UnblindedSignature{Value: inv}, nil
}

func checkBallot(ballot *big.Int, pub PublicKey) error {
	if err := pub.validate(); err != nil {
		return err
	}
	return checkRange("ballot", ballot, bigOne, pub.N)
}
