package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zenGate-Global/aso-insight/domains/audit/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const listOperation = "auditLogsList"

// Handler serves an organization's audit trail.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("audit service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the audit endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/organizations/{orgId}/audit-logs", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}
	orgID, err := problem.PathUUID(r, "orgId")
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}

	opts := service.ListOptions{Action: problem.QueryString(r, "action")}
	if opts.Page, err = problem.QueryInt(r, "page"); err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}
	if opts.PageSize, err = problem.QueryInt(r, "pageSize"); err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}

	result, err := h.svc.List(r.Context(), actor, orgID, opts)
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, result)
}
