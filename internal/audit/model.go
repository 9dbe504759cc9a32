// Package audit maintains a per-org append-only event chain. Each entry
// carries the SHA-256 of its canonical form including the previous entry's
// hash, so any retroactive edit breaks verification from that point on.
package audit

import (
	"errors"
	"time"
)

// Entry is one link in an org's audit chain. Seq is dense per org starting
// at 1; PrevHash is empty for the first entry.
type Entry struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"orgId"`
	Seq       int64          `json:"seq"`
	ActorID   string         `json:"actorId"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
	PrevHash  string         `json:"prevHash"`
	Hash      string         `json:"hash"`
}

// VerifyResult reports a chain walk. When Valid is false, BrokenSeq points
// at the first entry whose stored hash does not match its recomputed hash.
type VerifyResult struct {
	OrgID     string `json:"orgId"`
	Checked   int    `json:"checked"`
	Valid     bool   `json:"valid"`
	BrokenSeq int64  `json:"brokenSeq,omitempty"`
}

var (
	// ErrSeqConflict indicates a concurrent append took the sequence slot.
	ErrSeqConflict = errors.New("audit: sequence conflict")
	// ErrChainBroken indicates verification found a hash mismatch.
	ErrChainBroken = errors.New("audit: chain broken")
)
