package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scanara-ai/scanara-backend/internal/apps"
	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/models"
)

type AppHandler struct {
	svc *apps.Service
}

func NewAppHandler(svc *apps.Service) *AppHandler {
	return &AppHandler{svc: svc}
}

func (h *AppHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AppHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.svc.Get(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *AppHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAppRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkRequest(req, "Name is required"); err != nil {
		writeError(w, r, err)
		return
	}

	app, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *AppHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.AppPatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkRequest(req, "Name is required"); err != nil {
		writeError(w, r, err)
		return
	}

	app, err := h.svc.Update(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *AppHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "App deleted successfully"})
}

func (h *AppHandler) Connection(w http.ResponseWriter, r *http.Request) {
	kind := models.ConnectionType(r.URL.Query().Get("type"))
	status, err := h.svc.CheckConnection(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
