package lodgment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/ledger"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/shared"
	"github.com/apgms/apgms/internal/taxconfig"
)

type memLock struct {
	held map[string]bool
}

func (m *memLock) Acquire(_ context.Context, orgID string) error {
	if m.held[orgID] {
		return shared.ErrLockHeld
	}
	if m.held == nil {
		m.held = map[string]bool{}
	}
	m.held[orgID] = true
	return nil
}

func (m *memLock) Release(_ context.Context, orgID string) error {
	delete(m.held, orgID)
	return nil
}

type stubRecon struct {
	report reconcile.Report
}

func (s *stubRecon) Report(context.Context, string, string) (reconcile.Report, error) {
	return s.report, nil
}

type stubPeriods struct {
	period  obligation.Period
	lodged  bool
	markErr error
}

func (s *stubPeriods) GetPeriod(context.Context, string, string) (obligation.Period, error) {
	return s.period, nil
}

func (s *stubPeriods) MarkLodged(context.Context, string, string, time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.lodged = true
	return nil
}

type stubLedger struct {
	designatedAccounts map[string]designated.Account
	accountsByCode     map[string]ledger.Account
	mappings           map[string]designated.Mapping
	owed               map[string]int64
	balances           map[int64]int64
	journals           []ledger.Journal
}

func (s *stubLedger) ListJournals(context.Context, string, ledger.JournalFilter) ([]ledger.Journal, error) {
	return s.journals, nil
}

func (s *stubLedger) GetJournal(context.Context, string, string) (ledger.Journal, error) {
	return ledger.Journal{}, ledger.ErrJournalNotFound
}

func (s *stubLedger) CreditBalance(_ context.Context, accountID int64, _ *string) (int64, error) {
	return s.balances[accountID], nil
}

func (s *stubLedger) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, &stubTx{repo: s})
}

type stubTx struct {
	repo *stubLedger
}

func (t *stubTx) InsertJournal(_ context.Context, in ledger.WriteInput) (ledger.Journal, error) {
	j := ledger.Journal{ID: uuid.New(), OrgID: in.OrgID, BasPeriodID: in.BasPeriodID, Type: in.Type}
	t.repo.journals = append(t.repo.journals, j)
	return j, nil
}

func (t *stubTx) InsertPostings(_ context.Context, journalID uuid.UUID, _ string, postings []ledger.PostingInput) error {
	for i := range t.repo.journals {
		if t.repo.journals[i].ID != journalID {
			continue
		}
		for _, p := range postings {
			t.repo.journals[i].Postings = append(t.repo.journals[i].Postings, ledger.Posting{
				JournalID:   journalID,
				AccountID:   p.AccountID,
				AmountCents: p.AmountCents,
			})
		}
	}
	return nil
}

func (t *stubTx) MissingAccounts(context.Context, string, []int64) ([]int64, error) {
	return nil, nil
}

func (t *stubTx) GetAccountByCode(_ context.Context, _, code string) (ledger.Account, error) {
	a, ok := t.repo.accountsByCode[code]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (t *stubTx) GetJournalWithPostings(context.Context, string, string) (ledger.Journal, error) {
	return ledger.Journal{}, ledger.ErrJournalNotFound
}

func (t *stubTx) GetDesignatedForUpdate(_ context.Context, id string) (designated.Account, error) {
	a, ok := t.repo.designatedAccounts[id]
	if !ok {
		return designated.Account{}, designated.ErrAccountNotFound
	}
	return a, nil
}

func (t *stubTx) CreditBalance(ctx context.Context, accountID int64, basPeriodID *string) (int64, error) {
	return t.repo.CreditBalance(ctx, accountID, basPeriodID)
}

func (t *stubTx) AccrueObligation(context.Context, string, string, string, int64) error {
	return nil
}

func (t *stubTx) GetMapping(_ context.Context, _, taxType string) (designated.Mapping, error) {
	m, ok := t.repo.mappings[taxType]
	if !ok {
		return designated.Mapping{}, designated.ErrMappingNotFound
	}
	return m, nil
}

func (t *stubTx) ObligationAmount(_ context.Context, _, _, taxType string) (int64, error) {
	return t.repo.owed[taxType], nil
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, string, map[string]any) error {
	return nil
}

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) ObserveLodgment(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

type fixture struct {
	lock    *memLock
	recon   *stubRecon
	periods *stubPeriods
	ledger  *stubLedger
	metrics *recordingMetrics
	svc     *Service
}

func newFixture() *fixture {
	f := &fixture{
		lock:  &memLock{},
		recon: &stubRecon{report: reconcile.Report{OrgID: "org-1", BasPeriodID: "2026-Q1", Status: reconcile.StatusMatched}},
		periods: &stubPeriods{
			period: obligation.Period{ID: "2026-Q1", OrgID: "org-1", Label: "Q3 FY2026"},
		},
		ledger: &stubLedger{
			designatedAccounts: map[string]designated.Account{
				"da-paygw": {ID: "da-paygw", OrgID: "org-1", Lifecycle: designated.LifecycleActive, LedgerAccountID: 10},
				"da-gst":   {ID: "da-gst", OrgID: "org-1", Lifecycle: designated.LifecycleActive, LedgerAccountID: 11},
			},
			accountsByCode: map[string]ledger.Account{
				"ATO_PAYGW_CLEARING": {ID: 20, OrgID: "org-1", Code: "ATO_PAYGW_CLEARING"},
				"ATO_GST_CLEARING":   {ID: 21, OrgID: "org-1", Code: "ATO_GST_CLEARING"},
			},
			mappings: map[string]designated.Mapping{
				"PAYGW": {OrgID: "org-1", TaxType: taxconfig.TaxTypePAYGW, DesignatedAccountID: "da-paygw"},
				"GST":   {OrgID: "org-1", TaxType: taxconfig.TaxTypeGST, DesignatedAccountID: "da-gst"},
			},
			owed:     map[string]int64{},
			balances: map[int64]int64{},
		},
		metrics: &recordingMetrics{},
	}
	f.svc = NewService(f.lock, f.recon, f.periods, f.ledger, noopAudit{}, f.metrics)
	return f
}

func TestLodgeDrainsBothBuffers(t *testing.T) {
	f := newFixture()
	f.ledger.owed["PAYGW"] = 30000
	f.ledger.owed["GST"] = 7000
	f.ledger.balances[10] = 30000
	f.ledger.balances[11] = 7000

	result, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.JournalID)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, "ATO_PAYGW_CLEARING", result.Lines[0].ClearingAccountCode)
	assert.True(t, f.periods.lodged)

	require.Len(t, f.ledger.journals, 1)
	journal := f.ledger.journals[0]
	assert.Equal(t, ledger.JournalTypeBasLodgment, journal.Type)
	require.Len(t, journal.Postings, 4)
	var sum int64
	for _, p := range journal.Postings {
		sum += p.AmountCents
	}
	assert.Zero(t, sum)

	// Lock released after lodgment.
	assert.False(t, f.lock.held["org-1"])
	assert.Equal(t, []string{"lodged"}, f.metrics.outcomes)
}

func TestLodgeSweepsSurplusAboveObligation(t *testing.T) {
	f := newFixture()
	f.ledger.owed["PAYGW"] = 5000
	f.ledger.balances[10] = 6000

	result, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, int64(6000), result.Lines[0].AmountCents)

	require.Len(t, f.ledger.journals, 1)
	require.Len(t, f.ledger.journals[0].Postings, 2)
	assert.Equal(t, int64(6000), f.ledger.journals[0].Postings[0].AmountCents)
}

func TestLodgeDrainsBalanceWhenNothingOwed(t *testing.T) {
	f := newFixture()
	f.ledger.balances[10] = 2500

	result, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	assert.Equal(t, taxconfig.TaxTypePAYGW, result.Lines[0].TaxType)
	assert.Equal(t, int64(2500), result.Lines[0].AmountCents)
	require.Len(t, f.ledger.journals, 1)
	assert.True(t, f.periods.lodged)
}

func TestLodgeBlockedByReconShortfall(t *testing.T) {
	f := newFixture()
	f.recon.report.Status = reconcile.StatusShortfall
	f.recon.report.Lines = []reconcile.Line{{TaxType: taxconfig.TaxTypePAYGW, Status: reconcile.StatusShortfall, VarianceCents: -5000}}

	_, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.ErrorIs(t, err, ErrShortfall)

	var shortfall *ShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, reconcile.StatusShortfall, shortfall.Report.Status)
	assert.Empty(t, f.ledger.journals)
	assert.False(t, f.periods.lodged)
	assert.Equal(t, []string{"shortfall"}, f.metrics.outcomes)
}

func TestLodgeRechecksBalanceInTx(t *testing.T) {
	f := newFixture()
	f.ledger.owed["PAYGW"] = 30000
	// Gate passes on the stub report, but the locked read finds less.
	f.ledger.balances[10] = 20000

	_, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.ErrorIs(t, err, ErrShortfall)
	assert.Empty(t, f.ledger.journals)
	assert.Equal(t, []string{"shortfall"}, f.metrics.outcomes)
}

func TestLodgeLockContention(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.lock.Acquire(context.Background(), "org-1"))

	_, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.ErrorIs(t, err, ErrLocked)
}

func TestLodgeAlreadyLodged(t *testing.T) {
	f := newFixture()
	at := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)
	f.periods.period.LodgedAt = &at

	_, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.ErrorIs(t, err, ErrAlreadyLodged)
}

func TestLodgeNothingOwedClosesWithoutJournal(t *testing.T) {
	f := newFixture()

	result, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.NoError(t, err)
	assert.Empty(t, result.JournalID)
	assert.Empty(t, result.Lines)
	assert.Empty(t, f.ledger.journals)
	assert.True(t, f.periods.lodged)
}

func TestLodgeRejectsClosedAccount(t *testing.T) {
	f := newFixture()
	f.ledger.owed["PAYGW"] = 1000
	f.ledger.balances[10] = 1000
	account := f.ledger.designatedAccounts["da-paygw"]
	account.Lifecycle = designated.LifecycleClosed
	f.ledger.designatedAccounts["da-paygw"] = account

	_, err := f.svc.Lodge(context.Background(), "org-1", "actor-1", "2026-Q1")
	require.Error(t, err)
	assert.Empty(t, f.ledger.journals)
}
