package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

// RefreshEnqueuer schedules an asynchronous rebuild of a company's catalog.
type RefreshEnqueuer interface {
	EnqueuePermissionsRefresh(ctx context.Context, companyID int64) error
}

// Handler exposes the catalog and shield endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	catalogs  CatalogSource
	refresher RefreshEnqueuer
	validator *validator.Validate
	rbac      Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, catalogs CatalogSource, refresher RefreshEnqueuer, rbac Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		catalogs:  catalogs,
		refresher: refresher,
		validator: validator.New(),
		rbac:      rbac,
	}
}

// MountRoutes registers catalog and shield routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ParamViewRoles, shared.ParamViewMembers))
		r.Get("/catalog", h.getCatalog)
		r.Get("/shields", h.getShields)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.ParamEditCustomFields))
		r.Post("/catalog/refresh", h.refreshCatalog)
	})
	// Super admin status is checked by the service.
	r.Put("/shields/{param}", h.putShield)
}

type shieldRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

func (h *Handler) getCatalog(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	c, err := h.catalogs.Catalog(r.Context(), actor.CompanyID)
	if err != nil {
		h.fail(w, "load catalog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	if err := h.refresher.EnqueuePermissionsRefresh(r.Context(), actor.CompanyID); err != nil {
		h.fail(w, "enqueue catalog refresh", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"company_id": actor.CompanyID, "status": "queued"})
}

func (h *Handler) getShields(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	locks, err := h.service.Shields(r.Context(), actor.CompanyID)
	if err != nil {
		h.fail(w, "load shields", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"acc": locks})
}

func (h *Handler) putShield(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req shieldRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	param := chi.URLParam(r, "param")
	locks, err := h.service.SetShield(r.Context(), actor, param, *req.Locked)
	if err != nil {
		h.fail(w, "set shield", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"acc": locks})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if h.logger != nil {
		h.logger.Warn(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
