package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strconv"
)

// NewCode returns a numeric verification code of the given length, drawn
// uniformly from [10^(digits-1), 10^digits - 1]. The first digit is never
// zero, so the code survives any integer round-trip a client might do.
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	lo := int64(1)
	for i := 1; i < digits; i++ {
		lo *= 10
	}
	span := lo*10 - lo // 9 * 10^(digits-1) possible codes

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return "", err
	}

	code := strconv.FormatInt(lo+n.Int64(), 10)
	if len(code) != digits {
		return "", errors.New("invalid code generation length")
	}
	return code, nil
}

// HashCode is the stored form of a code. Raw codes never reach Redis.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
