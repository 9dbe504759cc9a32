package ledger

import (
	"context"
	"fmt"
)

// AuditPort records ledger actions on the org's audit chain.
type AuditPort interface {
	Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error
}

// Service validates and appends journals. All writes run under repeatable
// read so the account-existence check and the insert see one snapshot.
type Service struct {
	repo  Repository
	audit AuditPort
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Write appends a balanced journal in its own transaction.
func (s *Service) Write(ctx context.Context, actorID string, in WriteInput) (Journal, error) {
	var journal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		journal, err = WriteTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	_ = s.audit.Record(ctx, in.OrgID, actorID, "ledger.journal.write", map[string]any{
		"journalId": journal.ID.String(),
		"type":      journal.Type,
	})
	return journal, nil
}

// WriteTx appends a journal inside a caller-owned transaction. Settlement
// and lodgment use it to combine guard checks and journal writes atomically.
func WriteTx(ctx context.Context, tx TxRepository, in WriteInput) (Journal, error) {
	if err := in.Validate(); err != nil {
		return Journal{}, err
	}
	ids := make([]int64, 0, len(in.Postings))
	for _, p := range in.Postings {
		ids = append(ids, p.AccountID)
	}
	missing, err := tx.MissingAccounts(ctx, in.OrgID, ids)
	if err != nil {
		return Journal{}, err
	}
	if len(missing) > 0 {
		return Journal{}, fmt.Errorf("%w: %v", ErrUnknownAccount, missing)
	}
	journal, err := tx.InsertJournal(ctx, in)
	if err != nil {
		return Journal{}, err
	}
	if err := tx.InsertPostings(ctx, journal.ID, in.OrgID, in.Postings); err != nil {
		return Journal{}, err
	}
	return journal, nil
}

// Reverse writes a new journal whose postings negate the original. The
// original journal is never mutated.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (Journal, error) {
	var reversal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithPostings(ctx, in.OrgID, in.JournalID)
		if err != nil {
			return err
		}
		postings := make([]PostingInput, 0, len(original.Postings))
		for _, p := range original.Postings {
			postings = append(postings, PostingInput{
				AccountID:   p.AccountID,
				AmountCents: -p.AmountCents,
				Memo:        p.Memo,
			})
		}
		reversal, err = WriteTx(ctx, tx, WriteInput{
			OrgID:       in.OrgID,
			BasPeriodID: original.BasPeriodID,
			Type:        JournalTypeReversal,
			Source:      "ledger.reverse",
			Description: fmt.Sprintf("reversal of %s: %s", original.ID, in.Reason),
			Meta: map[string]any{
				"reverses": original.ID.String(),
				"reason":   in.Reason,
			},
			Postings: postings,
		})
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	_ = s.audit.Record(ctx, in.OrgID, in.ActorID, "ledger.journal.reverse", map[string]any{
		"journalId": in.JournalID,
		"reversal":  reversal.ID.String(),
	})
	return reversal, nil
}

// List returns journals for the org, newest first.
func (s *Service) List(ctx context.Context, orgID string, filter JournalFilter) ([]Journal, error) {
	return s.repo.ListJournals(ctx, orgID, filter)
}

// Get returns one journal with its postings.
func (s *Service) Get(ctx context.Context, orgID, journalID string) (Journal, error) {
	return s.repo.GetJournal(ctx, orgID, journalID)
}
