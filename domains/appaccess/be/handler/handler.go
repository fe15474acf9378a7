package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zenGate-Global/aso-insight/domains/appaccess/be/service"
	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/problem"
)

const (
	listOperation    = "appAccessList"
	grantOperation   = "appAccessGrant"
	revokeOperation  = "appAccessRevoke"
	reviewsOperation = "reviewsList"
)

// Handler exposes an organization's store apps and their reviews.
type Handler struct {
	svc     service.Service
	respond *problem.Responder
}

// New constructs a Handler instance.
func New(svc service.Service, respond *problem.Responder) *Handler {
	if svc == nil {
		panic("app access service is required")
	}
	if respond == nil {
		panic("responder is required")
	}
	return &Handler{svc: svc, respond: respond}
}

// Routes mounts the app access endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/organizations/{orgId}", func(r chi.Router) {
		r.Get("/apps", h.list)
		r.Post("/apps", h.grant)
		r.Delete("/apps/{accessId}", h.revoke)
		r.Get("/reviews", h.reviews)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}

	apps, err := h.svc.List(r.Context(), actor, orgID)
	if err != nil {
		h.respond.Error(w, r, listOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, map[string]any{"items": apps})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}

	var input service.GrantInput
	if err := problem.DecodeJSON(r, &input); err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}

	app, err := h.svc.Grant(r.Context(), actor, orgID, input)
	if err != nil {
		h.respond.Error(w, r, grantOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusCreated, app)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}
	accessID, err := problem.PathUUID(r, "accessId")
	if err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}

	if err := h.svc.Revoke(r.Context(), actor, orgID, accessID); err != nil {
		h.respond.Error(w, r, revokeOperation, err)
		return
	}
	h.respond.NoContent(w)
}

func (h *Handler) reviews(w http.ResponseWriter, r *http.Request) {
	actor, orgID, err := callerAndOrg(r)
	if err != nil {
		h.respond.Error(w, r, reviewsOperation, err)
		return
	}

	opts := service.ReviewOptions{
		Store: problem.QueryString(r, "store"),
		AppID: problem.QueryString(r, "appId"),
	}
	if opts.Page, err = problem.QueryInt(r, "page"); err != nil {
		h.respond.Error(w, r, reviewsOperation, err)
		return
	}
	if opts.PageSize, err = problem.QueryInt(r, "pageSize"); err != nil {
		h.respond.Error(w, r, reviewsOperation, err)
		return
	}

	page, err := h.svc.ListReviews(r.Context(), actor, orgID, opts)
	if err != nil {
		h.respond.Error(w, r, reviewsOperation, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, page)
}

func callerAndOrg(r *http.Request) (actor, orgID uuid.UUID, err error) {
	actor, err = platformauth.CallerID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orgID, err = problem.PathUUID(r, "orgId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return actor, orgID, nil
}
