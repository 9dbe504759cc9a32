// Package tax holds the deterministic PAYGW and GST calculation engines.
// Every numeric rate comes from a versioned parameter set; the engines carry
// no tax content of their own.
package tax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apgms/apgms/internal/taxconfig"
)

// ErrNoBracket indicates no withholding bracket covers the gross amount.
var ErrNoBracket = errors.New("tax: no paygw bracket matches gross amount")

// ConfigSource resolves the parameter set active for a tax type on a date.
type ConfigSource interface {
	GetActiveConfig(ctx context.Context, q taxconfig.Query) (taxconfig.Config, error)
}

// PaygwInput describes one withholding calculation.
type PaygwInput struct {
	Jurisdiction taxconfig.Jurisdiction
	OnDate       time.Time
	GrossCents   int64
	// PayPeriod is carried for audit metadata; the bracket tables are
	// provisioned per pay period, so the engine does not annualise.
	PayPeriod string
}

// PaygwResult reports the withholding and the parameters that produced it.
type PaygwResult struct {
	WithholdingCents int64
	ParameterSetID   string
	BracketIndex     int
}

// PaygwEngine computes withholding from bracket-table parameter sets.
type PaygwEngine struct {
	configs ConfigSource
}

// NewPaygwEngine constructs a withholding engine.
func NewPaygwEngine(configs ConfigSource) *PaygwEngine {
	return &PaygwEngine{configs: configs}
}

// Calculate resolves the active bracket table and computes withholding for
// the gross amount. The last bracket whose threshold does not exceed the
// gross applies; brackets are stored sorted ascending by threshold.
func (e *PaygwEngine) Calculate(ctx context.Context, in PaygwInput) (PaygwResult, error) {
	cfg, err := e.configs.GetActiveConfig(ctx, taxconfig.Query{
		Jurisdiction: in.Jurisdiction,
		TaxType:      taxconfig.TaxTypePAYGW,
		OnDate:       in.OnDate,
	})
	if err != nil {
		return PaygwResult{}, err
	}
	paygw, ok := cfg.(taxconfig.PaygwConfig)
	if !ok {
		return PaygwResult{}, fmt.Errorf("tax: parameter set %s is not a paygw config", cfg.ParameterSetID())
	}

	index := -1
	for i, b := range paygw.Brackets {
		if b.ThresholdCents <= in.GrossCents {
			index = i
		}
	}
	if index < 0 {
		return PaygwResult{}, ErrNoBracket
	}

	bracket := paygw.Brackets[index]
	excess := in.GrossCents - bracket.ThresholdCents
	variable := excess * bracket.MarginalRateMilli / 1000
	withholding := bracket.BaseWithholdingCents + variable
	if withholding < 0 {
		withholding = 0
	}

	return PaygwResult{
		WithholdingCents: withholding,
		ParameterSetID:   paygw.ParameterSetID(),
		BracketIndex:     index,
	}, nil
}
