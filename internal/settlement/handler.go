package settlement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/platform/httpx"
	"github.com/apgms/apgms/internal/shared"
	"github.com/apgms/apgms/internal/tax"
	"github.com/apgms/apgms/internal/taxconfig"
)

// Enqueuer hands a batch to the background queue instead of settling it in
// the request. Implemented by the jobs client.
type Enqueuer interface {
	EnqueuePayroll(ctx context.Context, actorID string, batch PayrollBatch) (string, error)
	EnqueuePos(ctx context.Context, actorID string, batch PosBatch) (string, error)
}

// Handler exposes the settlement endpoints. The router mounts these behind
// the idempotency middleware; batches replayed with the same key return the
// recorded outcome.
type Handler struct {
	service  *Service
	queue    Enqueuer
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, queue Enqueuer) *Handler {
	return &Handler{service: service, queue: queue, logger: logger, validate: validator.New()}
}

// MountRoutes attaches settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/paygw", h.SettlePaygw)
	r.Post("/gst", h.SettleGst)
}

type payrollRequest struct {
	BasPeriodID string        `json:"basPeriodId" validate:"required"`
	BatchRef    string        `json:"batchRef" validate:"required"`
	PaidOn      time.Time     `json:"paidOn" validate:"required"`
	PayPeriod   string        `json:"payPeriod" validate:"required,oneof=WEEKLY FORTNIGHTLY MONTHLY"`
	Lines       []PayrollLine `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) SettlePaygw(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req payrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch := PayrollBatch{
		OrgID:       identity.OrgID,
		BasPeriodID: req.BasPeriodID,
		BatchRef:    req.BatchRef,
		PaidOn:      req.PaidOn,
		PayPeriod:   req.PayPeriod,
		Lines:       req.Lines,
	}
	if h.asyncRequested(r) {
		taskID, err := h.queue.EnqueuePayroll(r.Context(), identity.ActorID, batch)
		if err != nil {
			h.logger.Error("enqueue paygw settlement", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
		return
	}
	result, err := h.service.SettlePaygw(r.Context(), identity.ActorID, batch)
	if err != nil {
		h.respondError(w, "settle paygw", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type posLine struct {
	Category    string `json:"category" validate:"required"`
	AmountCents int64  `json:"amountCents"`
}

type posRequest struct {
	BasPeriodID string    `json:"basPeriodId" validate:"required"`
	BatchRef    string    `json:"batchRef" validate:"required"`
	TradedOn    time.Time `json:"tradedOn" validate:"required"`
	Sales       []posLine `json:"sales" validate:"dive"`
	Purchases   []posLine `json:"purchases" validate:"dive"`
	Adjustments []posLine `json:"adjustments" validate:"dive"`
}

func (h *Handler) SettleGst(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req posRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch := PosBatch{
		OrgID:       identity.OrgID,
		BasPeriodID: req.BasPeriodID,
		BatchRef:    req.BatchRef,
		TradedOn:    req.TradedOn,
		Sales:       toGstLines(req.Sales),
		Purchases:   toGstLines(req.Purchases),
		Adjustments: toGstLines(req.Adjustments),
	}
	if h.asyncRequested(r) {
		taskID, err := h.queue.EnqueuePos(r.Context(), identity.ActorID, batch)
		if err != nil {
			h.logger.Error("enqueue gst settlement", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
		return
	}
	result, err := h.service.SettleGst(r.Context(), identity.ActorID, batch)
	if err != nil {
		h.respondError(w, "settle gst", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) asyncRequested(r *http.Request) bool {
	return h.queue != nil && r.URL.Query().Get("mode") == "async"
}

func toGstLines(lines []posLine) []tax.GstLine {
	out := make([]tax.GstLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, tax.GstLine{Category: line.Category, AmountCents: line.AmountCents})
	}
	return out
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, designated.ErrMappingNotFound):
		httpx.Problem(w, http.StatusConflict, "No Designated Account", err.Error())
	case errors.Is(err, designated.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, designated.ErrMovementNotAllowed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Movement Not Allowed", err.Error())
	case errors.Is(err, taxconfig.ErrConfigMissing):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Active Tax Config", err.Error())
	case errors.Is(err, tax.ErrNoBracket):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Applicable Bracket", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
