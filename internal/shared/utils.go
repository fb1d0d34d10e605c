// Package shared provides utility functions for generating random one-time
// secrets and wiping sensitive memory.
package shared

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size parameter specifies the number of random bytes to generate before
// encoding them as a hexadecimal string, so the final string length is twice
// the size.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {

	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// MakeRandDigits returns a string of n uniformly distributed decimal digits.
// Leading zeros are kept, so "004217" is a valid 6-digit result.
func MakeRandDigits(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	ten := big.NewInt(10)
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}

	return string(out), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
