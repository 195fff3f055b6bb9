// Package idgen provides cryptographically random record identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix generates a random ID with a type prefix (e.g. "txn_").
// Result is prefix + 24 hex chars (12 random bytes), which fits the
// VARCHAR(36) id columns.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
