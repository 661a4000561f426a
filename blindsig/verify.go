package blindsig

import "math/big"

// Verify reports whether unblinded^e mod n == ballot. Anyone holding the
// public key and a vote record can run it. Ballots outside [1, n) never
// verify, as no blinded ballot could have carried them. Ballot 1 signs to 1
// under every key.
func Verify(pub PublicKey, sig UnblindedSignature, ballot *big.Int) bool {
	if pub.validate() != nil || sig.Value == nil || ballot == nil {
		return false
	}
	if checkBallot(ballot, pub) != nil {
		return false
	}
	if sig.Value.Sign() < 0 || sig.Value.Cmp(pub.N) >= 0 {
		return false
	}
	return new(big.Int).Exp(sig.Value, pub.E, pub.N).Cmp(ballot) == 0
}
