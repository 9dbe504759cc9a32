package taxconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads versioned parameter sets. Effective windows are enforced
// non-overlapping upstream by the provisioning tooling; this layer only
// resolves the window covering the query date.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a parameter-set repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetActiveConfig resolves the parameter set active on the query date.
func (r *Repository) GetActiveConfig(ctx context.Context, q Query) (Config, error) {
	var (
		id      string
		payload []byte
	)
	err := r.db.QueryRow(ctx, `SELECT id, payload FROM tax_parameter_sets
WHERE jurisdiction=$1 AND tax_type=$2 AND effective_from <= $3 AND (effective_to IS NULL OR effective_to >= $3)
ORDER BY effective_from DESC LIMIT 1`, string(q.Jurisdiction), string(q.TaxType), q.OnDate).
		Scan(&id, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigMissing
		}
		return nil, err
	}
	return decodeConfig(q.TaxType, id, payload)
}

func decodeConfig(t TaxType, id string, payload []byte) (Config, error) {
	switch t {
	case TaxTypePAYGW:
		var cfg PaygwConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("taxconfig: decode paygw payload: %w", err)
		}
		cfg.ID = id
		return cfg, nil
	case TaxTypeGST:
		var cfg GstConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("taxconfig: decode gst payload: %w", err)
		}
		cfg.ID = id
		return cfg, nil
	default:
		return nil, fmt.Errorf("taxconfig: unsupported tax type %q", t)
	}
}
