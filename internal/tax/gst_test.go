package tax

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apgms/apgms/internal/taxconfig"
)

func gstConfig() taxconfig.GstConfig {
	return taxconfig.GstConfig{
		ID:        "au-gst-2026",
		RateMilli: 10000,
		Classifications: map[string]taxconfig.Classification{
			"retail":    taxconfig.ClassificationTaxable,
			"groceries": taxconfig.ClassificationGSTFree,
			"rent":      taxconfig.ClassificationInputTaxed,
			"supplies":  taxconfig.ClassificationTaxable,
		},
	}
}

func TestGstTransaction(t *testing.T) {
	engine := NewGstEngine(stubConfigSource{config: gstConfig()})
	onDate := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	gst, err := engine.CalculateTransaction(context.Background(), taxconfig.JurisdictionAUCommonwealth, onDate, GstTransaction{GrossCents: 11000, Taxable: true})
	require.NoError(t, err)
	require.Equal(t, int64(1100), gst)

	gst, err = engine.CalculateTransaction(context.Background(), taxconfig.JurisdictionAUCommonwealth, onDate, GstTransaction{GrossCents: 11000, Taxable: false})
	require.NoError(t, err)
	require.Equal(t, int64(0), gst)

	// Fractional cents floor.
	gst, err = engine.CalculateTransaction(context.Background(), taxconfig.JurisdictionAUCommonwealth, onDate, GstTransaction{GrossCents: 999, Taxable: true})
	require.NoError(t, err)
	require.Equal(t, int64(99), gst)
}

func TestGstNetOnlyTaxableContributes(t *testing.T) {
	engine := NewGstEngine(stubConfigSource{config: gstConfig()})

	result, err := engine.CalculateNet(context.Background(), GstNetInput{
		Jurisdiction: taxconfig.JurisdictionAUCommonwealth,
		OnDate:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Sales: []GstLine{
			{Category: "retail", AmountCents: 100000},
			{Category: "groceries", AmountCents: 50000},
			{Category: "rent", AmountCents: 20000},
		},
		Purchases: []GstLine{
			{Category: "supplies", AmountCents: -30000},
		},
		Adjustments: []GstLine{
			{Category: "retail", AmountCents: -5000},
		},
	})
	require.NoError(t, err)
	// 100000 - 30000 - 5000 taxable base at 10%.
	require.Equal(t, int64(65000), result.TaxableBaseCents)
	require.Equal(t, int64(6500), result.NetGstCents)
	require.False(t, result.RefundDue)
	require.Empty(t, result.UnmappedCategories)
}

func TestGstNetUnmappedCategoriesExcluded(t *testing.T) {
	engine := NewGstEngine(stubConfigSource{config: gstConfig()})

	result, err := engine.CalculateNet(context.Background(), GstNetInput{
		Sales: []GstLine{
			{Category: "retail", AmountCents: 10000},
			{Category: "mystery", AmountCents: 99999},
			{Category: "other", AmountCents: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10000), result.TaxableBaseCents)
	require.Equal(t, []string{"mystery", "other"}, result.UnmappedCategories)
}

func TestGstNetRefundPosition(t *testing.T) {
	engine := NewGstEngine(stubConfigSource{config: gstConfig()})

	result, err := engine.CalculateNet(context.Background(), GstNetInput{
		Sales:     []GstLine{{Category: "retail", AmountCents: 10000}},
		Purchases: []GstLine{{Category: "supplies", AmountCents: -40000}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(-30000), result.TaxableBaseCents)
	require.Equal(t, int64(-3000), result.NetGstCents)
	require.True(t, result.RefundDue)
}

func TestFloorDivRoundsTowardNegativeInfinity(t *testing.T) {
	require.Equal(t, int64(0), floorDiv(999, 1000))
	require.Equal(t, int64(-1), floorDiv(-999, 1000))
	require.Equal(t, int64(-1), floorDiv(-1000, 1000))
}
