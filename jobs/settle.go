package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/idempotency"
	jobmetrics "github.com/apgms/apgms/internal/jobs"
	"github.com/apgms/apgms/internal/settlement"
	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
)

// Deduper collapses repeated deliveries of the same batch onto one
// execution. *idempotency.Store satisfies it.
type Deduper interface {
	Execute(ctx context.Context, orgID, scope, key, payloadHash string, fn idempotency.HandlerFunc) (idempotency.Outcome, error)
}

// Settler is the settlement surface the job needs. *settlement.Service
// satisfies it.
type Settler interface {
	SettlePaygw(ctx context.Context, actorID string, batch settlement.PayrollBatch) (settlement.Result, error)
	SettleGst(ctx context.Context, actorID string, batch settlement.PosBatch) (settlement.Result, error)
}

// SettlementJob processes queued settlement batches. Asynq retries on
// failure; the deduper keeps a redelivered batch from settling twice.
type SettlementJob struct {
	Settlements Settler
	Dedupe      Deduper
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewSettlementJob initialises the settlement task handler.
func NewSettlementJob(settlements Settler, dedupe Deduper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementJob {
	return &SettlementJob{Settlements: settlements, Dedupe: dedupe, Logger: logger, Metrics: metrics}
}

// HandlePayroll executes TaskPayrollSettlement tasks.
func (j *SettlementJob) HandlePayroll(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("settlement job: handler not configured")
	}
	var payload PayrollSettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPayrollSettlement)
	return tracker.End(j.run(ctx, t.Payload(), payload.Batch.OrgID, "jobs:"+TaskPayrollSettlement, payload.Batch.BatchRef, func(ctx context.Context) error {
		result, err := j.Settlements.SettlePaygw(ctx, payload.ActorID, payload.Batch)
		if err != nil {
			return err
		}
		j.logger().Info("payroll batch settled",
			slog.String("batch_ref", payload.Batch.BatchRef),
			slog.String("journal_id", result.JournalID),
			slog.Int64("amount_cents", result.AmountCents))
		return nil
	}))
}

// HandlePos executes TaskPosSettlement tasks.
func (j *SettlementJob) HandlePos(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("settlement job: handler not configured")
	}
	var payload PosSettlementPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPosSettlement)
	return tracker.End(j.run(ctx, t.Payload(), payload.Batch.OrgID, "jobs:"+TaskPosSettlement, payload.Batch.BatchRef, func(ctx context.Context) error {
		result, err := j.Settlements.SettleGst(ctx, payload.ActorID, payload.Batch)
		if err != nil {
			return err
		}
		if len(result.UnmappedCategories) > 0 {
			j.logger().Warn("pos batch had unmapped categories",
				slog.String("batch_ref", payload.Batch.BatchRef),
				slog.Any("categories", result.UnmappedCategories))
		}
		j.logger().Info("pos batch settled",
			slog.String("batch_ref", payload.Batch.BatchRef),
			slog.String("journal_id", result.JournalID),
			slog.Int64("amount_cents", result.AmountCents))
		return nil
	}))
}

func (j *SettlementJob) run(ctx context.Context, raw []byte, orgID, scope, key string, fn func(context.Context) error) error {
	outcome, err := j.Dedupe.Execute(ctx, orgID, scope, key, idempotency.HashPayload(raw), func(ctx context.Context) (int, []byte, error) {
		if err := fn(ctx); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, nil, nil
	})
	if err != nil {
		if permanent(err) {
			j.logger().Error("batch rejected", slog.String("key", key), slog.Any("error", err))
			return asynq.SkipRetry
		}
		return err
	}
	if outcome.Replayed {
		j.logger().Info("batch already settled, skipping", slog.String("key", key))
	}
	return nil
}

// permanent reports errors retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, designated.ErrMovementNotAllowed) ||
		errors.Is(err, designated.ErrMappingNotFound) ||
		errors.Is(err, taxconfig.ErrConfigMissing) ||
		errors.Is(err, tax.ErrNoBracket) ||
		errors.Is(err, idempotency.ErrConflict)
}

func (j *SettlementJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SettlementJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
