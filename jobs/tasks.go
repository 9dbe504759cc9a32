// Package jobs defines the background task types and the Asynq worker that
// processes them: asynchronous batch settlement and the daily BAS due scan.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/apgms/apgms/internal/settlement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPayrollSettlement settles an ingested payroll batch.
	TaskPayrollSettlement = "settlement:payroll"
	// TaskPosSettlement settles an ingested POS batch.
	TaskPosSettlement = "settlement:pos"
	// TaskBasDueScan scans for BAS periods approaching their due date.
	TaskBasDueScan = "recon:bas_due_scan"
)

// PayrollSettlementPayload carries one payroll batch to settle.
type PayrollSettlementPayload struct {
	ActorID string                  `json:"actorId"`
	Batch   settlement.PayrollBatch `json:"batch"`
}

// PosSettlementPayload carries one POS batch to settle.
type PosSettlementPayload struct {
	ActorID string              `json:"actorId"`
	Batch   settlement.PosBatch `json:"batch"`
}

// BasDueScanPayload carries scheduling metadata for the due scan.
type BasDueScanPayload struct {
	ScheduledFor time.Time `json:"scheduledFor"`
	// WarnAhead widens the scan to periods due within this many days.
	WarnAhead int `json:"warnAheadDays"`
}

// NewPayrollSettlementTask constructs an Asynq task for a payroll batch.
func NewPayrollSettlementTask(payload PayrollSettlementPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayrollSettlement, body, asynq.Queue(QueueDefault)), nil
}

// NewPosSettlementTask constructs an Asynq task for a POS batch.
func NewPosSettlementTask(payload PosSettlementPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPosSettlement, body, asynq.Queue(QueueDefault)), nil
}

// NewBasDueScanTask constructs the daily due-scan task.
func NewBasDueScanTask(at time.Time, warnAheadDays int) (*asynq.Task, error) {
	body, err := json.Marshal(BasDueScanPayload{ScheduledFor: at, WarnAhead: warnAheadDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBasDueScan, body, asynq.Queue(QueueDefault)), nil
}
