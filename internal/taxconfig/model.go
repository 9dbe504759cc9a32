package taxconfig

import (
	"errors"
	"time"
)

// TaxType enumerates the obligation types the engines compute.
type TaxType string

const (
	TaxTypePAYGW TaxType = "PAYGW"
	TaxTypeGST   TaxType = "GST"
)

// Jurisdiction scopes a parameter set to a taxing authority.
type Jurisdiction string

// JurisdictionAUCommonwealth is the only jurisdiction currently provisioned.
const JurisdictionAUCommonwealth Jurisdiction = "AU-COMMONWEALTH"

// ErrConfigMissing indicates no active parameter set covers the requested date.
var ErrConfigMissing = errors.New("taxconfig: no active parameter set for date")

// Config is a closed variant over the parameter-set shapes the engines read.
// Each engine asserts to its concrete type; the discriminator is the tax type
// tag, never structural inspection.
type Config interface {
	TaxType() TaxType
	ParameterSetID() string
}

// PaygwBracket is one row of a withholding bracket table, pre-sorted by
// ascending threshold.
type PaygwBracket struct {
	ThresholdCents       int64 `json:"thresholdCents"`
	BaseWithholdingCents int64 `json:"baseWithholdingCents"`
	// MarginalRateMilli expresses the marginal rate in thousandths:
	// 100 means 10% of the excess over the threshold.
	MarginalRateMilli int64 `json:"marginalRateMilli"`
}

// PaygwConfig is the bracket-table parameter set for withholding.
type PaygwConfig struct {
	ID       string         `json:"id"`
	Brackets []PaygwBracket `json:"brackets"`
}

func (PaygwConfig) TaxType() TaxType { return TaxTypePAYGW }

func (c PaygwConfig) ParameterSetID() string { return c.ID }

// Classification buckets a revenue/expense category for GST purposes.
type Classification string

const (
	ClassificationTaxable    Classification = "taxable"
	ClassificationGSTFree    Classification = "gst_free"
	ClassificationInputTaxed Classification = "input_taxed"
)

// GstConfig is the rate and category-classification parameter set for GST.
type GstConfig struct {
	ID string `json:"id"`
	// RateMilli expresses the GST rate in hundred-thousandths:
	// 10000 means 10% of the taxable base.
	RateMilli int64 `json:"rateMilli"`
	// Classifications maps category codes to their GST classification.
	// Categories absent from the map do not contribute to the taxable base;
	// that policy belongs to the config, not the engine.
	Classifications map[string]Classification `json:"classifications"`
}

func (GstConfig) TaxType() TaxType { return TaxTypeGST }

func (c GstConfig) ParameterSetID() string { return c.ID }

// Query selects the parameter set active for a tax type on a date.
type Query struct {
	Jurisdiction Jurisdiction
	TaxType      TaxType
	OnDate       time.Time
}
