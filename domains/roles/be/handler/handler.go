package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zenGate-Global/aso-insight/domains/roles/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	assignOperation      = "rolesAssign"
	getOperation         = "rolesGet"
	revokeOperation      = "rolesRevoke"
	addMemberOperation   = "membersAdd"
	listMembersOperation = "membersList"
)

// Handler exposes role management over HTTP.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("roles service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the role and membership endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Put("/users/{userId}/role", h.assign)
	r.Get("/users/{userId}/role", h.get)
	r.Delete("/users/{userId}/role", h.revoke)
	r.Get("/organizations/{orgId}/members", h.listMembers)
	r.Post("/organizations/{orgId}/members", h.addMember)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, assignOperation, err)
		return
	}
	userID, err := problem.PathUUID(r, "userId")
	if err != nil {
		h.respond.Error(w, r, assignOperation, err)
		return
	}

	var input service.AssignInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, assignOperation, err)
		return
	}

	assignment, err := h.svc.Assign(r.Context(), actor, userID, input)
	if err != nil {
		h.respond.Error(w, r, assignOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, assignment)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, getOperation, err)
		return
	}
	userID, err := problem.PathUUID(r, "userId")
	if err != nil {
		h.respond.Error(w, r, getOperation, err)
		return
	}

	assignment, err := h.svc.Get(r.Context(), actor, userID)
	if err != nil {
		h.respond.Error(w, r, getOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, assignment)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}
	userID, err := problem.PathUUID(r, "userId")
	if err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}

	if err := h.svc.Revoke(r.Context(), actor, userID); err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}
	h.respond.NoContent(w)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, addMemberOperation, err)
		return
	}
	orgID, err := problem.PathUUID(r, "orgId")
	if err != nil {
		h.respond.Error(w, r, addMemberOperation, err)
		return
	}

	var input service.AddMemberInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, addMemberOperation, err)
		return
	}

	assignment, err := h.svc.AddMember(r.Context(), actor, orgID, input)
	if err != nil {
		h.respond.Error(w, r, addMemberOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	actor, err := platformauth.CallerID(r.Context())
	if err != nil {
		h.respond.Error(w, r, listMembersOperation, err)
		return
	}
	orgID, err := problem.PathUUID(r, "orgId")
	if err != nil {
		h.respond.Error(w, r, listMembersOperation, err)
		return
	}
	page, err := problem.QueryInt(r, "page")
	if err != nil {
		h.respond.Error(w, r, listMembersOperation, err)
		return
	}
	pageSize, err := problem.QueryInt(r, "pageSize")
	if err != nil {
		h.respond.Error(w, r, listMembersOperation, err)
		return
	}

	result, err := h.svc.ListMembers(r.Context(), actor, orgID, service.ListOptions{Page: page, PageSize: pageSize})
	if err != nil {
		h.respond.Error(w, r, listMembersOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, result)
}
