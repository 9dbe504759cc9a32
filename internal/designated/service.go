package designated

import (
	"context"
	"fmt"

	"github.com/apgms/apgms/internal/taxconfig"
)

// AuditPort records designated-account events for compliance.
type AuditPort interface {
	Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error
}

// Service applies lifecycle transitions driven by the external provisioning
// workflow and manages obligation mappings. Movements never pass through
// here; those are validated by the guard inside ledger transactions.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService constructs the designated-account service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get returns one of the org's designated accounts. Accounts held by
// other orgs are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, orgID, id string) (Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.OrgID != orgID {
		return Account{}, fmt.Errorf("%w: account %s belongs to another org", ErrAccountNotFound, id)
	}
	return account, nil
}

// List returns the org's designated accounts.
func (s *Service) List(ctx context.Context, orgID string) ([]Account, error) {
	return s.repo.ListAccounts(ctx, orgID)
}

// Transition moves an account to the next lifecycle state. The chain is
// one-way; CLOSED accounts never reopen.
func (s *Service) Transition(ctx context.Context, orgID, id string, to Lifecycle, actorID string) (Account, error) {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.OrgID != orgID {
		return Account{}, fmt.Errorf("%w: account %s belongs to another org", ErrAccountNotFound, id)
	}
	if !CanTransition(account.Lifecycle, to) {
		return Account{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, account.Lifecycle, to)
	}
	if err := s.repo.UpdateLifecycle(ctx, id, account.Lifecycle, to); err != nil {
		return Account{}, err
	}
	previous := account.Lifecycle
	account.Lifecycle = to
	if s.audit != nil {
		_ = s.audit.Record(ctx, account.OrgID, actorID, "designated.lifecycle", map[string]any{
			"accountId": account.ID,
			"from":      string(previous),
			"to":        string(to),
		})
	}
	return account, nil
}

// SetMapping binds an obligation type to a designated account for capture.
func (s *Service) SetMapping(ctx context.Context, m Mapping, actorID string) error {
	account, err := s.repo.GetAccount(ctx, m.DesignatedAccountID)
	if err != nil {
		return err
	}
	if account.OrgID != m.OrgID {
		return fmt.Errorf("%w: account %s belongs to another org", ErrAccountNotFound, m.DesignatedAccountID)
	}
	if err := s.repo.SetMapping(ctx, m); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, m.OrgID, actorID, "designated.mapping.set", map[string]any{
			"taxType":   string(m.TaxType),
			"accountId": m.DesignatedAccountID,
		})
	}
	return nil
}

// GetMapping resolves the designated account configured for a tax type.
func (s *Service) GetMapping(ctx context.Context, orgID string, taxType taxconfig.TaxType) (Mapping, error) {
	return s.repo.GetMapping(ctx, orgID, taxType)
}
