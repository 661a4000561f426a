package blindsig

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MinKeyBits is the smallest modulus GenerateKey will produce.
	MinKeyBits = 2048
	// DefaultPublicExponent is used when Options.PublicExponent is zero.
	DefaultPublicExponent = 65537
)

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)

// Options configures key generation.
type Options struct {
	Bits           int
	PublicExponent int
}

// PublicKey is the published half of the election key, (n, e).
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// Fingerprint identifies the key in logs and API responses.
func (pub PublicKey) Fingerprint() common.Hash {
	return crypto.Keccak256Hash(pub.N.Bytes(), pub.E.Bytes())
}

// Size returns the modulus length in bits.
func (pub PublicKey) Size() int {
	return pub.N.BitLen()
}

func (pub PublicKey) validate() error {
	if pub.N == nil || pub.E == nil {
		return errors.New("incomplete public key")
	}
	if pub.N.Cmp(bigTwo) <= 0 {
		return fmt.Errorf("modulus too small: %s", pub.N)
	}
	if pub.E.Cmp(bigOne) <= 0 || pub.E.Cmp(pub.N) >= 0 {
		return errors.New("public exponent out of range")
	}
	return nil
}

type publicKeyJSON struct {
	N hexutil.Bytes `json:"n"`
	E hexutil.Bytes `json:"e"`
}

func (pub PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicKeyJSON{N: pub.N.Bytes(), E: pub.E.Bytes()})
}

func (pub *PublicKey) UnmarshalJSON(data []byte) error {
	var raw publicKeyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	k := PublicKey{N: new(big.Int).SetBytes(raw.N), E: new(big.Int).SetBytes(raw.E)}
	if err := k.validate(); err != nil {
		return err
	}
	*pub = k
	return nil
}

// KeyPair is the election authority's RSA key. The private exponent is
// only reachable from inside this package.
type KeyPair struct {
	PublicKey
	d *big.Int
}

// NewKeyPair builds a key pair from raw numbers and checks it signs
// consistently.
func NewKeyPair(n, e, d *big.Int) (*KeyPair, error) {
	k := &KeyPair{
		PublicKey: PublicKey{N: new(big.Int).Set(n), E: new(big.Int).Set(e)},
		d:         new(big.Int).Set(d),
	}
	if err := k.validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *KeyPair) validate() error {
	if err := k.PublicKey.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptKey, err)
	}
	if k.d == nil || k.d.Sign() <= 0 || k.d.Cmp(k.N) >= 0 {
		return fmt.Errorf("%w: private exponent out of range", ErrCorruptKey)
	}
	// (2^e)^d must come back to 2.
	probe := new(big.Int).Exp(bigTwo, k.E, k.N)
	probe.Exp(probe, k.d, k.N)
	if probe.Cmp(new(big.Int).Mod(bigTwo, k.N)) != 0 {
		return fmt.Errorf("%w: e·d is not 1 mod λ(n)", ErrCorruptKey)
	}
	return nil
}

// GenerateKey creates a fresh key pair with d = e⁻¹ mod λ(n).
func GenerateKey(random io.Reader, opts Options) (*KeyPair, error) {
	if random == nil {
		random = rand.Reader
	}
	bits := opts.Bits
	if bits == 0 {
		bits = MinKeyBits
	}
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d < %d bits", ErrInsecureKeySize, bits, MinKeyBits)
	}
	exp := opts.PublicExponent
	if exp == 0 {
		exp = DefaultPublicExponent
	}
	if exp < 3 || exp%2 == 0 {
		return nil, fmt.Errorf("invalid public exponent %d", exp)
	}
	e := big.NewInt(int64(exp))

	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}
		q, err := rand.Prime(random, bits-bits/2)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		lambda := carmichael(p, q)
		if new(big.Int).GCD(nil, nil, e, lambda).Cmp(bigOne) != 0 {
			continue
		}
		d := new(big.Int).ModInverse(e, lambda)
		if d == nil {
			continue
		}
		return NewKeyPair(n, e, d)
	}
}

// carmichael returns λ(pq) = lcm(p-1, q-1).
func carmichael(p, q *big.Int) *big.Int {
	p1 := new(big.Int).Sub(p, bigOne)
	q1 := new(big.Int).Sub(q, bigOne)
	g := new(big.Int).GCD(nil, nil, p1, q1)
	l := new(big.Int).Mul(p1, q1)
	return l.Div(l, g)
}

type keyPairJSON struct {
	N hexutil.Bytes `json:"n"`
	E hexutil.Bytes `json:"e"`
	D hexutil.Bytes `json:"d"`
}

// EncodePrivate serializes the full key pair for the authority's own
// key file. The output contains d and must be stored with owner-only
// permissions.
func EncodePrivate(k *KeyPair) ([]byte, error) {
	return json.MarshalIndent(keyPairJSON{N: k.N.Bytes(), E: k.E.Bytes(), D: k.d.Bytes()}, "", "  ")
}

// DecodePrivate is the inverse of EncodePrivate.
func DecodePrivate(data []byte) (*KeyPair, error) {
	var raw keyPairJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	return NewKeyPair(
		new(big.Int).SetBytes(raw.N),
		new(big.Int).SetBytes(raw.E),
		new(big.Int).SetBytes(raw.D),
	)
}
