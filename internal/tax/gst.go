package tax

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/apgms/apgms/internal/taxconfig"
)

// GstTransaction is one POS transaction for per-transaction GST.
type GstTransaction struct {
	GrossCents int64
	Taxable    bool
}

// GstLine is one classified revenue or expense line for BAS netting.
// Amounts are signed as supplied: sales positive, purchases negative,
// adjustments whichever way they cut.
type GstLine struct {
	Category    string
	AmountCents int64
}

// GstNetInput groups the period's lines for classification netting.
type GstNetInput struct {
	Jurisdiction taxconfig.Jurisdiction
	OnDate       time.Time
	Sales        []GstLine
	Purchases    []GstLine
	Adjustments  []GstLine
}

// GstNetResult reports the netted GST position for a period.
type GstNetResult struct {
	NetGstCents      int64
	RefundDue        bool
	TaxableBaseCents int64
	ParameterSetID   string
	// UnmappedCategories lists category codes absent from the
	// classification map, which therefore contributed nothing.
	UnmappedCategories []string
}

// GstEngine computes GST from rate parameter sets.
type GstEngine struct {
	configs ConfigSource
}

// NewGstEngine constructs a GST engine.
func NewGstEngine(configs ConfigSource) *GstEngine {
	return &GstEngine{configs: configs}
}

func (e *GstEngine) activeConfig(ctx context.Context, jurisdiction taxconfig.Jurisdiction, onDate time.Time) (taxconfig.GstConfig, error) {
	cfg, err := e.configs.GetActiveConfig(ctx, taxconfig.Query{
		Jurisdiction: jurisdiction,
		TaxType:      taxconfig.TaxTypeGST,
		OnDate:       onDate,
	})
	if err != nil {
		return taxconfig.GstConfig{}, err
	}
	gst, ok := cfg.(taxconfig.GstConfig)
	if !ok {
		return taxconfig.GstConfig{}, fmt.Errorf("tax: parameter set %s is not a gst config", cfg.ParameterSetID())
	}
	return gst, nil
}

// CalculateTransaction computes the GST component of a single transaction.
func (e *GstEngine) CalculateTransaction(ctx context.Context, jurisdiction taxconfig.Jurisdiction, onDate time.Time, txn GstTransaction) (int64, error) {
	gst, err := e.activeConfig(ctx, jurisdiction, onDate)
	if err != nil {
		return 0, err
	}
	if !txn.Taxable {
		return 0, nil
	}
	return floorDiv(txn.GrossCents*gst.RateMilli, 100000), nil
}

// CalculateNet nets the period's classified lines into a single GST position.
// Only lines classified taxable contribute; gst_free and input_taxed lines
// carry no GST, and unmapped categories are excluded by config policy.
func (e *GstEngine) CalculateNet(ctx context.Context, in GstNetInput) (GstNetResult, error) {
	gst, err := e.activeConfig(ctx, in.Jurisdiction, in.OnDate)
	if err != nil {
		return GstNetResult{}, err
	}

	var base int64
	unmapped := map[string]struct{}{}
	accumulate := func(lines []GstLine) {
		for _, line := range lines {
			cls, ok := gst.Classifications[line.Category]
			if !ok {
				unmapped[line.Category] = struct{}{}
				continue
			}
			if cls == taxconfig.ClassificationTaxable {
				base += line.AmountCents
			}
		}
	}
	accumulate(in.Sales)
	accumulate(in.Purchases)
	accumulate(in.Adjustments)

	net := floorDiv(base*gst.RateMilli, 100000)

	categories := make([]string, 0, len(unmapped))
	for c := range unmapped {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	return GstNetResult{
		NetGstCents:        net,
		RefundDue:          net < 0,
		TaxableBaseCents:   base,
		ParameterSetID:     gst.ParameterSetID(),
		UnmappedCategories: categories,
	}, nil
}

// floorDiv divides rounding toward negative infinity, so refund positions
// floor the same way liabilities do.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
