package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/apgms/apgms/internal/jobs"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/reconcile"
)

// PeriodSource lists unlodged BAS periods for the due scan.
type PeriodSource interface {
	DuePeriods(ctx context.Context, cutoff time.Time) ([]obligation.Period, error)
}

// Auditor records reminders on the org's audit chain.
type Auditor interface {
	Record(ctx context.Context, orgID, actorID, action string, metadata map[string]any) error
}

// ReportSource reconciles a due period so shortfalls surface before the
// lodgment deadline instead of at lodgment time.
type ReportSource interface {
	Report(ctx context.Context, orgID, basPeriodID string) (reconcile.Report, error)
}

// BasDueScanJob reminds about BAS periods that are due or overdue and have
// not been lodged.
type BasDueScanJob struct {
	Periods PeriodSource
	Recon   ReportSource
	Audit   Auditor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBasDueScanJob initialises the due-scan handler.
func NewBasDueScanJob(periods PeriodSource, recon ReportSource, audit Auditor, logger *slog.Logger, metrics *jobmetrics.Metrics) *BasDueScanJob {
	return &BasDueScanJob{
		Periods: periods,
		Recon:   recon,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes TaskBasDueScan tasks.
func (j *BasDueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("bas due scan: handler not configured")
	}
	var payload BasDueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WarnAhead < 0 {
		payload.WarnAhead = 0
	}

	tracker := j.Metrics.Track(TaskBasDueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.clock().AddDate(0, 0, payload.WarnAhead)
	periods, err := j.Periods.DuePeriods(ctx, cutoff)
	if err != nil {
		resultErr = err
		return resultErr
	}
	now := j.clock()
	for _, period := range periods {
		level := slog.LevelInfo
		if period.DueAt.Before(now) {
			level = slog.LevelWarn
		}
		j.logger().Log(ctx, level, "bas period due",
			slog.String("org_id", period.OrgID),
			slog.String("bas_period_id", period.ID),
			slog.String("label", period.Label),
			slog.Time("due_at", period.DueAt))
		if j.Audit != nil {
			_ = j.Audit.Record(ctx, period.OrgID, "system:bas_due_scan", "bas.due_reminder", map[string]any{
				"basPeriodId": period.ID,
				"label":       period.Label,
				"dueAt":       period.DueAt,
				"overdue":     period.DueAt.Before(now),
			})
		}
		j.Metrics.ReminderSent()
		j.checkFunding(ctx, period)
	}
	j.logger().Info("bas due scan finished", slog.Int("periods", len(periods)))
	return nil
}

// checkFunding reconciles the period and records an audit entry per
// underfunded tax type. A reconciliation failure only logs; the reminder
// above has already gone out.
func (j *BasDueScanJob) checkFunding(ctx context.Context, period obligation.Period) {
	if j.Recon == nil {
		return
	}
	report, err := j.Recon.Report(ctx, period.OrgID, period.ID)
	if err != nil {
		j.logger().Error("bas due scan reconcile",
			slog.String("org_id", period.OrgID),
			slog.String("bas_period_id", period.ID),
			slog.Any("error", err))
		return
	}
	for _, line := range report.Lines {
		if line.Status != reconcile.StatusShortfall {
			continue
		}
		j.logger().Warn("bas period underfunded",
			slog.String("org_id", period.OrgID),
			slog.String("bas_period_id", period.ID),
			slog.String("tax_type", string(line.TaxType)),
			slog.Int64("variance_cents", line.VarianceCents))
		if j.Audit != nil {
			_ = j.Audit.Record(ctx, period.OrgID, "system:bas_due_scan", "bas.shortfall", map[string]any{
				"basPeriodId":   period.ID,
				"taxType":       string(line.TaxType),
				"varianceCents": line.VarianceCents,
				"detail":        line.Detail,
			})
		}
	}
}

func (j *BasDueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
