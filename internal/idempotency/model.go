// Package idempotency gives mutating endpoints exactly-once semantics per
// client key. A key is bound to the SHA-256 of its first request payload;
// replays return the stored response, and reuse with a different payload is
// rejected.
package idempotency

import (
	"errors"
	"time"
)

// Entry states. A pending row marks an execution in flight; only complete
// rows are replayable.
const (
	StatusPending  = "PENDING"
	StatusComplete = "COMPLETE"
)

// Entry is one recorded execution keyed by (org, scope, key).
type Entry struct {
	Key            string
	OrgID          string
	Scope          string
	PayloadHash    string
	Status         string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
}

var (
	// ErrConflict indicates key reuse with a different payload.
	ErrConflict = errors.New("idempotency: key reused with different payload")
	// ErrInFlight indicates the first request with this key has not
	// finished yet.
	ErrInFlight = errors.New("idempotency: request in flight")
)
