package storage

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Hash returns the content hash of b: the 128-bit xxh3 digest as 32 lower
// case hex characters. Equal bytes always produce equal hashes.
func Hash(b []byte) string {
	sum := xxh3.Hash128(b)
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}

// HashString is Hash over the UTF-8 bytes of s.
func HashString(s string) string {
	return Hash([]byte(s))
}
