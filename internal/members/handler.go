package members

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

// Handler manages member endpoints.
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

// MountRoutes registers member routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ParamViewMembers, shared.ParamEditMembers))
		r.Get("/", h.listMembers)
		r.Get("/{id}", h.getMember)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.ParamEditMembers))
		r.Put("/{id}/template", h.assignTemplate)
		r.Post("/{id}/mutations", h.mutateMember)
		r.Post("/{id}/reset", h.resetMember)
	})
}

type templateRequest struct {
	RoleTemplateID *int64 `json:"role_template_id" validate:"omitempty,gt=0"`
}

type resetRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	members, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": members})
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	detail, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get member", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) assignTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req templateRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	m, err := h.service.AssignTemplate(r.Context(), actor, id, req.RoleTemplateID)
	if err != nil {
		h.fail(w, "assign member template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) mutateMember(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var m permissions.Mutation
	if err := h.decode(r, &m); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// Resets discard personal overrides and go through the confirmed endpoint.
	if m.Op == permissions.OpResetToTemplate {
		httpx.RespondError(w, fmt.Errorf("%w: use POST /members/%d/reset", httpx.ErrValidation, id))
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.Mutate(r.Context(), actor, id, m)
	if err != nil {
		h.fail(w, "mutate member", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) resetMember(w http.ResponseWriter, r *http.Request) {
	id, err := memberID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req resetRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !req.Confirm {
		httpx.RespondError(w, fmt.Errorf("%w: reset requires confirm=true", httpx.ErrValidation))
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.ResetToTemplate(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "reset member", err)
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

func memberID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid member id", httpx.ErrValidation)
	}
	return id, nil
}
