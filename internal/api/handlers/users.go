package handlers

import (
	"errors"
	"net/http"

	"github.com/scanara-ai/scanara-backend/internal/auth"
	"github.com/scanara-ai/scanara-backend/internal/models"
	"github.com/scanara-ai/scanara-backend/internal/users"
)

type UserHandler struct {
	svc *users.Service
}

func NewUserHandler(svc *users.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeProfileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *UserHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := checkRequest(req, "Missing required fields"); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Upsert(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfilePatch
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.svc.Update(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		h.writeProfileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// writeProfileError adds the code the dashboard uses to send new users to
// onboarding.
func (h *UserHandler) writeProfileError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "Profile not found",
			"code":  "PROFILE_NOT_FOUND",
		})
		return
	}
	writeError(w, r, err)
}
