package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// appendRetries bounds how many sequence conflicts one append will absorb
// before giving up.
const appendRetries = 5

// Service appends to and verifies org audit chains.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger, repo Repository) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// hashEnvelope fixes the canonical field order for hashing. Metadata is
// embedded as given; a nil map hashes as JSON null.
type hashEnvelope struct {
	OrgID     string         `json:"orgId"`
	ActorID   string         `json:"actorId"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"createdAt"`
	PrevHash  string         `json:"prevHash"`
}

// ComputeHash returns the hex SHA-256 of the entry's canonical form.
// CreatedAt is rendered as RFC 3339 with nanoseconds in UTC so the digest
// does not depend on the server's zone.
func ComputeHash(e Entry) (string, error) {
	payload, err := json.Marshal(hashEnvelope{
		OrgID:     e.OrgID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		PrevHash:  e.PrevHash,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Append links a new entry onto the org's chain. Concurrent appends race on
// the (org_id, seq) unique index; the loser re-reads the head and retries.
func (s *Service) Append(ctx context.Context, orgID, actorID, action string, metadata map[string]any) (Entry, error) {
	for attempt := 0; attempt < appendRetries; attempt++ {
		head, found, err := s.repo.LastEntry(ctx, orgID)
		if err != nil {
			return Entry{}, err
		}
		entry := Entry{
			ID:        uuid.NewString(),
			OrgID:     orgID,
			Seq:       1,
			ActorID:   actorID,
			Action:    action,
			Metadata:  metadata,
			CreatedAt: s.now().UTC(),
		}
		if found {
			entry.Seq = head.Seq + 1
			entry.PrevHash = head.Hash
		}
		entry.Hash, err = ComputeHash(entry)
		if err != nil {
			return Entry{}, err
		}
		err = s.repo.Insert(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, ErrSeqConflict) {
			return Entry{}, err
		}
	}
	return Entry{}, fmt.Errorf("audit: append for org %s: %w", orgID, ErrSeqConflict)
}

// Record is the fire-and-forget form services call after their own commits.
// Failures are logged, never propagated; a lost audit line must not undo a
// committed business transaction.
func (s *Service) Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error {
	if _, err := s.Append(ctx, orgID, actorID, action, metadata); err != nil {
		s.logger.Error("audit record failed",
			slog.String("org_id", orgID),
			slog.String("action", action),
			slog.Any("error", err))
		return err
	}
	return nil
}

// Verify walks the org's chain from seq 1 and recomputes every hash.
func (s *Service) Verify(ctx context.Context, orgID string) (VerifyResult, error) {
	entries, err := s.repo.ListAsc(ctx, orgID)
	if err != nil {
		return VerifyResult{}, err
	}
	result := VerifyResult{OrgID: orgID, Valid: true}
	prevHash := ""
	var prevSeq int64
	for _, e := range entries {
		result.Checked++
		if e.Seq != prevSeq+1 || e.PrevHash != prevHash {
			result.Valid = false
			result.BrokenSeq = e.Seq
			return result, nil
		}
		computed, err := ComputeHash(e)
		if err != nil {
			return VerifyResult{}, err
		}
		if computed != e.Hash {
			result.Valid = false
			result.BrokenSeq = e.Seq
			return result, nil
		}
		prevHash = e.Hash
		prevSeq = e.Seq
	}
	return result, nil
}

// List returns the most recent entries, newest first.
func (s *Service) List(ctx context.Context, orgID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListDesc(ctx, orgID, limit)
}
