package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Outcome is what Execute hands back: either the fresh handler result or a
// stored replay.
type Outcome struct {
	Status   int
	Body     []byte
	Replayed bool
}

// HandlerFunc produces the response to record for a first execution.
type HandlerFunc func(ctx context.Context) (int, []byte, error)

// Store coordinates at-most-once execution per key. In-process duplicates
// collapse onto one flight via singleflight; cross-process duplicates are
// arbitrated by the pending row in Postgres.
type Store struct {
	repo  Repository
	group singleflight.Group
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// HashPayload returns the hex SHA-256 digest a key is bound to.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute runs fn under the key, or replays the stored outcome. Server side
// failures (an error from fn, or a 5xx status) leave no record so the client
// can retry the same key.
func (s *Store) Execute(ctx context.Context, orgID, scope, key, payloadHash string, fn HandlerFunc) (Outcome, error) {
	flightKey := orgID + ":" + scope + ":" + key
	result, err, _ := s.group.Do(flightKey, func() (any, error) {
		return s.execute(ctx, orgID, scope, key, payloadHash, fn)
	})
	if err != nil {
		return Outcome{}, err
	}
	return result.(Outcome), nil
}

func (s *Store) execute(ctx context.Context, orgID, scope, key, payloadHash string, fn HandlerFunc) (Outcome, error) {
	claimed, err := s.repo.TryBegin(ctx, Entry{
		OrgID:       orgID,
		Scope:       scope,
		Key:         key,
		PayloadHash: payloadHash,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !claimed {
		existing, found, err := s.repo.Get(ctx, orgID, scope, key)
		if err != nil {
			return Outcome{}, err
		}
		if !found {
			// The earlier execution failed and abandoned its claim
			// between our insert and read. Treat as retryable.
			return Outcome{}, ErrInFlight
		}
		if existing.PayloadHash != payloadHash {
			return Outcome{}, fmt.Errorf("%w: key %q", ErrConflict, key)
		}
		if existing.Status != StatusComplete {
			return Outcome{}, ErrInFlight
		}
		return Outcome{Status: existing.ResponseStatus, Body: existing.ResponseBody, Replayed: true}, nil
	}

	status, body, err := fn(ctx)
	if err != nil || status >= 500 {
		// Leave no record; the client keeps the right to retry this key.
		if abandonErr := s.repo.Abandon(ctx, orgID, scope, key); abandonErr != nil && err == nil {
			return Outcome{}, abandonErr
		}
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: status, Body: body}, nil
	}
	if err := s.repo.Complete(ctx, orgID, scope, key, status, body); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: status, Body: body}, nil
}
