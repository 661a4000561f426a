package blindsig

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrOutOfRange is matched by every *RangeError.
	ErrOutOfRange = errors.New("value out of range")
	// ErrNotInvertible is returned when a blinding factor shares a factor with n.
	ErrNotInvertible = errors.New("blinding factor is not invertible modulo n")
	// ErrInsecureKeySize is returned by GenerateKey for moduli below MinKeyBits.
	ErrInsecureKeySize = errors.New("key size below minimum")
	// ErrCorruptKey means the key material does not satisfy e·d ≡ 1 (mod λ(n)).
	ErrCorruptKey = errors.New("corrupt key material")
)

// RangeError reports a ballot or blinded value outside its allowed interval.
type RangeError struct {
	Field string
	Min   *big.Int
	Max   *big.Int // exclusive
	Value *big.Int
}

func (e *RangeError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("%s: missing value", e.Field)
	}
	// The value may be a ballot, only its size is reported.
	return fmt.Sprintf("%s out of range [%s, n): %d-bit value", e.Field, e.Min, e.Value.BitLen())
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }

func checkRange(field string, v, min, max *big.Int) error {
	if v == nil || v.Cmp(min) < 0 || v.Cmp(max) >= 0 {
		return &RangeError{Field: field, Min: min, Max: max, Value: v}
	}
	return nil
}
