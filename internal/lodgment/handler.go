package lodgment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apgms/apgms/internal/designated"
	"github.com/apgms/apgms/internal/obligation"
	"github.com/apgms/apgms/internal/platform/httpx"
	"github.com/apgms/apgms/internal/shared"
)

// Handler exposes the lodgment endpoint. The router mounts it behind the
// idempotency middleware.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches lodgment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{basPeriodId}", h.Lodge)
}

func (h *Handler) Lodge(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	result, err := h.service.Lodge(r.Context(), identity.OrgID, identity.ActorID, chi.URLParam(r, "basPeriodId"))
	if err != nil {
		var shortfall *ShortfallError
		switch {
		case errors.As(err, &shortfall):
			// The report rides along so the caller can see what is short.
			httpx.JSON(w, http.StatusConflict, map[string]any{
				"type":   "about:blank",
				"title":  "Reconciliation Shortfall",
				"status": http.StatusConflict,
				"detail": shortfall.Error(),
				"report": shortfall.Report,
			})
		case errors.Is(err, ErrLocked):
			httpx.Problem(w, http.StatusConflict, "Lodgment In Progress", err.Error())
		case errors.Is(err, ErrAlreadyLodged):
			httpx.Problem(w, http.StatusConflict, "Already Lodged", err.Error())
		case errors.Is(err, obligation.ErrPeriodNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, designated.ErrMappingNotFound):
			httpx.Problem(w, http.StatusConflict, "No Designated Account", err.Error())
		default:
			h.logger.Error("lodge", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
