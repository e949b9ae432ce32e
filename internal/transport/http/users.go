package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dmodels "github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/service"
	"github.com/mkozyreva/accounts-service/internal/transport/http/apierrors"
	"github.com/mkozyreva/accounts-service/internal/transport/http/middleware"
	"github.com/mkozyreva/accounts-service/internal/transport/http/models"
)

// Me — GET /users/me.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized,
			"unauthenticated", "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, models.UserFromModel(user))
}

// UpdateMe — PATCH /users/me.
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized,
			"unauthenticated", "authentication required")
		return
	}

	var in models.UpdateProfileRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	updated, err := h.svc.UpdateProfile(r.Context(), user.ID, service.ProfileUpdateInput{
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.UserFromModel(updated))
}

// DeactivateMe — DELETE /users/me.
// Логическое удаление: учётная запись помечается неактивной, 204.
func (h *Handlers) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized,
			"unauthenticated", "authentication required")
		return
	}

	if err := h.svc.DeactivateAccount(r.Context(), user.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers — GET /users (только admin).
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := models.ListUsersResponse{Users: make([]models.User, 0, len(users))}
	for i := range users {
		out.Users = append(out.Users, *models.UserFromModel(&users[i]))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetUser — GET /users/{id} (только admin).
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	user, err := h.svc.ProfileByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.UserFromModel(user))
}

// UpdateUser — PATCH /users/{id} (только admin): роль/активность.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	var in models.AdminUpdateUserRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	patch := service.AdminUpdateInput{Active: in.Active}
	if in.Role != nil {
		role := dmodels.Role(*in.Role)
		patch.Role = &role
	}

	updated, err := h.svc.AdminUpdateUser(r.Context(), id, patch)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.UserFromModel(updated))
}

// DeleteUser — DELETE /users/{id} (только admin): физическое удаление.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if err := h.svc.AdminDeleteUser(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
