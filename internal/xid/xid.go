// Package xid generates prefixed identifiers for domain entities, e.g.
// prd_18f3a... for products. Ids are time-ordered with a random suffix.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a fresh identifier carrying the given entity prefix.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// Timestamp alone still yields a usable id when the entropy
		// source is unavailable.
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%x_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}
