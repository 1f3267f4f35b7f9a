package utils

import (
	"crypto/md5"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashString returns the 32-character md5 hex digest of input.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// TextHash is a fast non-cryptographic 64-bit hash used for in-process keys.
func TextHash(input string) uint64 {
	return xxhash.Sum64String(input)
}

func TextHashHex(input string) string {
	return strconv.FormatUint(TextHash(input), 16)
}
