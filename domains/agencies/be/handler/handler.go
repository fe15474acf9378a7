package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/agencies/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	grantOperation        = "agencyGrantsCreate"
	activationOperation   = "agencyGrantsActivation"
	listClientsOperation  = "agencyClientsList"
	listAgenciesOperation = "agenciesList"
)

// Handler exposes agency grants over HTTP.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("agencies service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the agency endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/agency-grants", h.grant)
	r.Patch("/agency-grants", h.setActive)
	r.Get("/organizations/{orgId}/agency-clients", h.listClients)
	r.Get("/organizations/{orgId}/agencies", h.listAgencies)
}

type activationRequest struct {
	service.GrantInput
	IsActive *bool `json:"isActive"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}

	var input service.GrantInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}

	grant, err := h.svc.Grant(r.Context(), actor, input)
	if err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, activationOperation, err)
		return
	}

	var body activationRequest
	if err := problem.DecodeJSON(r, &body); err != nil {
		h.respond.Error(w, r, activationOperation, err)
		return
	}
	if body.IsActive == nil {
		h.respond.Error(w, r, activationOperation, problem.Invalid("isActive", "isActive is required"))
		return
	}

	grant, err := h.svc.SetActive(r.Context(), actor, body.GrantInput, *body.IsActive)
	if err != nil {
		h.respond.Error(w, r, activationOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, grant)
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, listClientsOperation, h.svc.ListClients)
}

func (h *Handler) listAgencies(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, listAgenciesOperation, h.svc.ListAgencies)
}

type listFunc func(ctx context.Context, actor, orgID uuid.UUID, activeOnly bool) ([]service.Grant, error)

func (h *Handler) list(w http.ResponseWriter, r *http.Request, op string, fn listFunc) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, op, err)
		return
	}
	orgID, err := problem.PathUUID(r, "orgId")
	if err != nil {
		h.respond.Error(w, r, op, err)
		return
	}
	activeOnly, err := problem.QueryBool(r, "activeOnly", true)
	if err != nil {
		h.respond.Error(w, r, op, err)
		return
	}

	grants, err := fn(r.Context(), actor, orgID, activeOnly)
	if err != nil {
		h.respond.Error(w, r, op, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, map[string]any{"items": grants})
}
