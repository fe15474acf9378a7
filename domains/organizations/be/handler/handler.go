package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/organizations/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	createOperation     = "organizationsCreate"
	listOperation       = "organizationsList"
	getOperation        = "organizationsGet"
	updateOperation     = "organizationsUpdate"
	activationOperation = "organizationsActivation"
	deleteOperation     = "organizationsDelete"
)

// Handler exposes the organizations service over HTTP.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("organizations service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the organization endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/organizations", h.create)
	r.Get("/organizations", h.list)
	r.Get("/organizations/{orgId}", h.get)
	r.Patch("/organizations/{orgId}", h.update)
	r.Put("/organizations/{orgId}/activation", h.setActive)
	r.Delete("/organizations/{orgId}", h.delete)
}

type activationRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, createOperation, err)
		return
	}

	var input service.CreateInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, createOperation, err)
		return
	}

	org, err := h.svc.Create(r.Context(), actor, input)
	if err != nil {
		h.respond.Error(w, r, createOperation, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/organizations/%s", org.ID))
	h.respond.JSON(w, http.StatusCreated, org)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}

	result, err := h.svc.List(r.Context(), actor, opts)
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, getOperation, err)
		return
	}

	org, err := h.svc.Get(r.Context(), actor, orgID)
	if err != nil {
		h.respond.Error(w, r, getOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, org)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, updateOperation, err)
		return
	}

	var input service.UpdateInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, updateOperation, err)
		return
	}

	org, err := h.svc.Update(r.Context(), actor, orgID, input)
	if err != nil {
		h.respond.Error(w, r, updateOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, org)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
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

	org, err := h.svc.SetActive(r.Context(), actor, orgID, *body.IsActive)
	if err != nil {
		h.respond.Error(w, r, activationOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, org)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, deleteOperation, err)
		return
	}

	if err := h.svc.Delete(r.Context(), actor, orgID); err != nil {
		h.respond.Error(w, r, deleteOperation, err)
		return
	}
	h.respond.NoContent(w)
}

func callerAndOrg(r *http.Request) (actor, orgID uuid.UUID, err error) {
	actor, err = platformauth.CallerID(r.Context())
	if err != nil {
		return actor, orgID, err
	}
	orgID, err = problem.PathUUID(r, "orgId")
	return actor, orgID, err
}

func listOptions(r *http.Request) (service.ListOptions, error) {
	page, err := problem.QueryInt(r, "page")
	if err != nil {
		return service.ListOptions{}, err
	}
	pageSize, err := problem.QueryInt(r, "pageSize")
	if err != nil {
		return service.ListOptions{}, err
	}
	activeOnly, err := problem.QueryBool(r, "activeOnly", false)
	if err != nil {
		return service.ListOptions{}, err
	}

	return service.ListOptions{
		Page:       page,
		PageSize:   pageSize,
		Search:     problem.QueryString(r, "q"),
		ActiveOnly: activeOnly,
	}, nil
}
