// Package hash provides SHA-256 digest helpers used for payload
// deduplication and ETL row integrity.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex hashes the input and returns a hex digest.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
