package roles

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-crm/odyssey-crm/internal/permissions"
	"github.com/odyssey-crm/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-crm/odyssey-crm/internal/rbac"
	"github.com/odyssey-crm/odyssey-crm/internal/shared"
)

// Handler manages role template endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers role template routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ParamViewRoles, shared.ParamEditRoles))
		r.Get("/", h.listTemplates)
		r.Get("/{id}", h.getTemplate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.ParamEditRoles))
		r.Post("/", h.createTemplate)
		r.Patch("/{id}", h.renameTemplate)
		r.Delete("/{id}", h.deleteTemplate)
		r.Post("/{id}/mutations", h.mutateTemplate)
	})
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	templates, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.fail(w, "list role templates", err)
		return
	}
	if templates == nil {
		templates = []RoleTemplate{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": templates})
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	detail, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get role template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	tpl, err := h.service.Create(r.Context(), actor, req.Name)
	if err != nil {
		h.fail(w, "create role template", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tpl)
}

func (h *Handler) renameTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req nameRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	tpl, err := h.service.Rename(r.Context(), actor, id, req.Name)
	if err != nil {
		h.fail(w, "rename role template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tpl)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete role template", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mutateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var m permissions.Mutation
	if err := h.decode(r, &m); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.Mutate(r.Context(), actor, id, m)
	if err != nil {
		h.fail(w, "mutate role template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func templateID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid template id", httpx.ErrValidation)
	}
	return id, nil
}
