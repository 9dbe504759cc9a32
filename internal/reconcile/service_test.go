package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/taxconfig"
)

type stubSources struct {
	mappings    map[taxconfig.TaxType]designated.Mapping
	accounts    map[string]designated.Account
	obligations map[taxconfig.TaxType]int64
	balances    map[int64]int64
}

func (s *stubSources) GetMapping(_ context.Context, _ string, taxType taxconfig.TaxType) (designated.Mapping, error) {
	m, ok := s.mappings[taxType]
	if !ok {
		return designated.Mapping{}, designated.ErrMappingNotFound
	}
	return m, nil
}

func (s *stubSources) GetAccount(_ context.Context, id string) (designated.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return designated.Account{}, designated.ErrAccountNotFound
	}
	return a, nil
}

func (s *stubSources) AmountFor(_ context.Context, _, _ string, taxType taxconfig.TaxType) (int64, error) {
	return s.obligations[taxType], nil
}

func (s *stubSources) CreditBalance(_ context.Context, accountID int64, _ *string) (int64, error) {
	return s.balances[accountID], nil
}

func fixtureSources() *stubSources {
	return &stubSources{
		mappings: map[taxconfig.TaxType]designated.Mapping{
			taxconfig.TaxTypePAYGW: {OrgID: "org-1", TaxType: taxconfig.TaxTypePAYGW, DesignatedAccountID: "da-paygw"},
			taxconfig.TaxTypeGST:   {OrgID: "org-1", TaxType: taxconfig.TaxTypeGST, DesignatedAccountID: "da-gst"},
		},
		accounts: map[string]designated.Account{
			"da-paygw": {ID: "da-paygw", OrgID: "org-1", LedgerAccountID: 10},
			"da-gst":   {ID: "da-gst", OrgID: "org-1", LedgerAccountID: 11},
		},
		obligations: map[taxconfig.TaxType]int64{},
		balances:    map[int64]int64{},
	}
}

func TestReportMatched(t *testing.T) {
	src := fixtureSources()
	src.obligations[taxconfig.TaxTypePAYGW] = 150000
	src.obligations[taxconfig.TaxTypeGST] = 44000
	src.balances[10] = 150000
	src.balances[11] = 44000

	report, err := NewService(src, src, src).Report(context.Background(), "org-1", "2026-Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, report.Status)
	require.Len(t, report.Lines, 2)
	assert.False(t, report.HasShortfall())
	for _, line := range report.Lines {
		assert.Equal(t, StatusMatched, line.Status)
		assert.Zero(t, line.VarianceCents)
	}
}

func TestReportShortfall(t *testing.T) {
	src := fixtureSources()
	src.obligations[taxconfig.TaxTypePAYGW] = 150000
	src.balances[10] = 120000

	report, err := NewService(src, src, src).Report(context.Background(), "org-1", "2026-Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusShortfall, report.Status)
	assert.True(t, report.HasShortfall())

	require.Len(t, report.Lines, 2)
	paygw := report.Lines[0]
	assert.Equal(t, taxconfig.TaxTypePAYGW, paygw.TaxType)
	assert.Equal(t, int64(-30000), paygw.VarianceCents)
	assert.Contains(t, paygw.Detail, "A$300.00")
}

func TestReportSurplus(t *testing.T) {
	src := fixtureSources()
	src.obligations[taxconfig.TaxTypeGST] = 40000
	src.balances[11] = 41000

	report, err := NewService(src, src, src).Report(context.Background(), "org-1", "2026-Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusSurplus, report.Status)
	assert.False(t, report.HasShortfall())
}

func TestReportSkipsIdleUnmappedType(t *testing.T) {
	src := fixtureSources()
	delete(src.mappings, taxconfig.TaxTypeGST)
	src.obligations[taxconfig.TaxTypePAYGW] = 1000
	src.balances[10] = 1000

	report, err := NewService(src, src, src).Report(context.Background(), "org-1", "2026-Q1")
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, taxconfig.TaxTypePAYGW, report.Lines[0].TaxType)
}

func TestReportUnmappedObligationIsShort(t *testing.T) {
	src := fixtureSources()
	delete(src.mappings, taxconfig.TaxTypeGST)
	src.obligations[taxconfig.TaxTypeGST] = 5000

	report, err := NewService(src, src, src).Report(context.Background(), "org-1", "2026-Q1")
	require.NoError(t, err)
	assert.Equal(t, StatusShortfall, report.Status)

	var gst Line
	for _, line := range report.Lines {
		if line.TaxType == taxconfig.TaxTypeGST {
			gst = line
		}
	}
	assert.Equal(t, StatusShortfall, gst.Status)
	assert.Contains(t, gst.Detail, "no designated account mapped")
	assert.Equal(t, int64(-5000), gst.VarianceCents)
}

func TestFormatAUDGroupsThousands(t *testing.T) {
	assert.Equal(t, "A$1,234.56", FormatAUD(123456))
	assert.Equal(t, "A$0.05", FormatAUD(5))
}
