package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/idempotency"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/reconcile"
	"github.com/apgms/apgms/internal/settlement"
	"github.com/apgms/apgms/internal/taxconfig"
)

type memDedupe struct {
	seen map[string]idempotency.Outcome
}

func (m *memDedupe) Execute(ctx context.Context, orgID, scope, key, _ string, fn idempotency.HandlerFunc) (idempotency.Outcome, error) {
	if m.seen == nil {
		m.seen = map[string]idempotency.Outcome{}
	}
	full := orgID + "/" + scope + "/" + key
	if out, ok := m.seen[full]; ok {
		out.Replayed = true
		return out, nil
	}
	status, body, err := fn(ctx)
	if err != nil {
		return idempotency.Outcome{}, err
	}
	out := idempotency.Outcome{Status: status, Body: body}
	m.seen[full] = out
	return out, nil
}

type stubSettler struct {
	paygwCalls int
	posCalls   int
	err        error
}

func (s *stubSettler) SettlePaygw(context.Context, string, settlement.PayrollBatch) (settlement.Result, error) {
	s.paygwCalls++
	return settlement.Result{JournalID: "j-1", AmountCents: 30000}, s.err
}

func (s *stubSettler) SettleGst(context.Context, string, settlement.PosBatch) (settlement.Result, error) {
	s.posCalls++
	return settlement.Result{JournalID: "j-2", AmountCents: 7000}, s.err
}

func payrollTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewPayrollSettlementTask(PayrollSettlementPayload{
		ActorID: "actor-1",
		Batch: settlement.PayrollBatch{
			OrgID:       "org-1",
			BasPeriodID: "2026-Q1",
			BatchRef:    "run-42",
			Lines:       []settlement.PayrollLine{{EmployeeRef: "emp-1", GrossCents: 200000}},
		},
	})
	require.NoError(t, err)
	return task
}

func TestHandlePayrollSettlesOnce(t *testing.T) {
	settler := &stubSettler{}
	job := NewSettlementJob(settler, &memDedupe{}, nil, nil)
	task := payrollTask(t)

	require.NoError(t, job.HandlePayroll(context.Background(), task))
	require.NoError(t, job.HandlePayroll(context.Background(), task))

	assert.Equal(t, 1, settler.paygwCalls)
}

func TestHandlePayrollTransientErrorRetries(t *testing.T) {
	settler := &stubSettler{err: errors.New("db down")}
	job := NewSettlementJob(settler, &memDedupe{}, nil, nil)

	err := job.HandlePayroll(context.Background(), payrollTask(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePayrollPermanentErrorSkipsRetry(t *testing.T) {
	settler := &stubSettler{err: designated.ErrMovementNotAllowed}
	job := NewSettlementJob(settler, &memDedupe{}, nil, nil)

	err := job.HandlePayroll(context.Background(), payrollTask(t))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePayrollMalformedPayload(t *testing.T) {
	job := NewSettlementJob(&stubSettler{}, &memDedupe{}, nil, nil)

	err := job.HandlePayroll(context.Background(), asynq.NewTask(TaskPayrollSettlement, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePosSettles(t *testing.T) {
	settler := &stubSettler{}
	job := NewSettlementJob(settler, &memDedupe{}, nil, nil)

	task, err := NewPosSettlementTask(PosSettlementPayload{
		ActorID: "actor-1",
		Batch:   settlement.PosBatch{OrgID: "org-1", BasPeriodID: "2026-Q1", BatchRef: "pos-7"},
	})
	require.NoError(t, err)
	require.NoError(t, job.HandlePos(context.Background(), task))
	assert.Equal(t, 1, settler.posCalls)
}

type stubPeriods struct {
	periods []obligation.Period
	cutoff  time.Time
}

func (s *stubPeriods) DuePeriods(_ context.Context, cutoff time.Time) ([]obligation.Period, error) {
	s.cutoff = cutoff
	return s.periods, nil
}

type recordingAuditor struct {
	actions []string
	orgs    []string
	meta    []map[string]any
}

func (a *recordingAuditor) Record(_ context.Context, orgID, _, action string, metadata map[string]any) error {
	a.orgs = append(a.orgs, orgID)
	a.actions = append(a.actions, action)
	a.meta = append(a.meta, metadata)
	return nil
}

type stubReports struct {
	reports map[string]reconcile.Report
}

func (s *stubReports) Report(_ context.Context, orgID, basPeriodID string) (reconcile.Report, error) {
	return s.reports[orgID+"/"+basPeriodID], nil
}

func TestBasDueScanWidensCutoff(t *testing.T) {
	due := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)
	periods := &stubPeriods{periods: []obligation.Period{
		{ID: "2026-Q1", OrgID: "org-1", Label: "Q3 FY2026", DueAt: due},
	}}
	auditor := &recordingAuditor{}
	recon := &stubReports{reports: map[string]reconcile.Report{
		"org-1/2026-Q1": {OrgID: "org-1", BasPeriodID: "2026-Q1", Status: reconcile.StatusMatched},
	}}
	job := NewBasDueScanJob(periods, recon, auditor, nil, nil)
	now := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	body, err := json.Marshal(BasDueScanPayload{ScheduledFor: now, WarnAhead: 14})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBasDueScan, body)))

	assert.Equal(t, now.AddDate(0, 0, 14), periods.cutoff)
	assert.Equal(t, []string{"bas.due_reminder"}, auditor.actions)
	assert.Equal(t, []string{"org-1"}, auditor.orgs)
}

func TestBasDueScanRecordsShortfalls(t *testing.T) {
	due := time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC)
	periods := &stubPeriods{periods: []obligation.Period{
		{ID: "2026-Q1", OrgID: "org-1", Label: "Q3 FY2026", DueAt: due},
	}}
	auditor := &recordingAuditor{}
	recon := &stubReports{reports: map[string]reconcile.Report{
		"org-1/2026-Q1": {
			OrgID:       "org-1",
			BasPeriodID: "2026-Q1",
			Status:      reconcile.StatusShortfall,
			Lines: []reconcile.Line{
				{TaxType: taxconfig.TaxTypePAYGW, Status: reconcile.StatusShortfall, VarianceCents: -5000},
				{TaxType: taxconfig.TaxTypeGST, Status: reconcile.StatusMatched},
			},
		},
	}}
	job := NewBasDueScanJob(periods, recon, auditor, nil, nil)
	now := time.Date(2026, 4, 29, 9, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	body, err := json.Marshal(BasDueScanPayload{ScheduledFor: now})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskBasDueScan, body)))

	require.Equal(t, []string{"bas.due_reminder", "bas.shortfall"}, auditor.actions)
	shortfall := auditor.meta[1]
	assert.Equal(t, "PAYGW", shortfall["taxType"])
	assert.Equal(t, int64(-5000), shortfall["varianceCents"])
}
