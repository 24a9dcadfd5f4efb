package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scanara-ai/scanara-backend/internal/audit"
	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

type AuditHandler struct {
	svc        *audit.Service
	dispatcher audit.Dispatcher
}

func NewAuditHandler(svc *audit.Service, d audit.Dispatcher) *AuditHandler {
	return &AuditHandler{svc: svc, dispatcher: d}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("appId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AuditHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Create records a running audit and hands it to the dispatcher. The
// response never waits for the run.
func (h *AuditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAuditRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkRequest(req, "appId is required"); err != nil {
		writeError(w, r, err)
		return
	}

	uid := auth.UserID(r.Context())
	a, err := h.svc.Create(r.Context(), uid, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	audit.FailOnDispatchError(r.Context(), h.dispatcher, h.svc, audit.Job{
		AuditID: a.ID,
		UserID:  uid,
		AppID:   a.AppID,
	})
	writeJSON(w, http.StatusCreated, a)
}

func (h *AuditHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.AuditPatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, r, models.Invalid(fmt.Sprintf("invalid audit update: %v", err)))
		return
	}

	a, err := h.svc.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
