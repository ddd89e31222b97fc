package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeMintEventID computes a deterministic mint event id using SHA256.
// Formula: SHA256(scheduledAt|amount|sequence)
// Returns hex-encoded hash (64 characters).
//
// Determinism matters for crash recovery: a tick that is retried after a
// restart maps to the same mint_events row, so the duplicate insert routes
// execution into the resume path instead of double-minting.
func ComputeMintEventID(scheduledAt int64, amount int64, sequence uint64) string {
	data := fmt.Sprintf("%d|%d|%d", scheduledAt, amount, sequence)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
