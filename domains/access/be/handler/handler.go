package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zenGate-Global/aso-insight/domains/access/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	permissionOperation = "mePermissions"
	checkOperation      = "organizationAccess"
)

// Handler exposes the caller's own permission view.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("access service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the access endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me/permissions", h.permission)
	r.Get("/organizations/{orgId}/access", h.check)
}

func (h *Handler) permission(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, permissionOperation, err)
		return
	}

	perm, err := h.svc.Permission(r.Context(), actor)
	if err != nil {
		h.respond.Error(w, r, permissionOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, perm)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, checkOperation, err)
		return
	}
	orgID, err := problem.PathUUID(r, "orgId")
	if err != nil {
		h.respond.Error(w, r, checkOperation, err)
		return
	}

	result, err := h.svc.Check(r.Context(), actor, orgID)
	if err != nil {
		h.respond.Error(w, r, checkOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, result)
}
