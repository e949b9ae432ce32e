package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkozyreva/accounts-service/internal/service"
	"github.com/mkozyreva/accounts-service/internal/transport/http/apierrors"
	"github.com/mkozyreva/accounts-service/internal/transport/http/middleware"
	"github.com/mkozyreva/accounts-service/internal/transport/http/models"
)

// ForgotPassword — POST /auth/forgot-password.
// Неизвестный email отвечает 404 (исторический контракт клиента).
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in models.ForgotPasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	if err := h.svc.ForgotPassword(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "password reset token sent to email",
	})
}

// ResetPassword — PATCH /auth/reset-password/{token}.
// Невалидный/просроченный/использованный токен — 400.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in models.ResetPasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	token := chi.URLParam(r, "token")

	pair, user, err := h.svc.ResetPassword(r.Context(), token, in.Password, in.PasswordConfirm)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			apierrors.WriteCode(w, r, http.StatusBadRequest,
				"invalid_token", "token is invalid or has expired")
			return
		}

		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, models.AuthResponseFromPair(pair, user))
}

// UpdatePassword — PATCH /auth/update-password (за гардом).
// Требует текущий пароль; после смены отдаёт свежую пару токенов.
func (h *Handlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized,
			"unauthenticated", "authentication required")
		return
	}

	var in models.UpdatePasswordRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	pair, err := h.svc.ChangePassword(r.Context(), user.ID, in.CurrentPassword, in.Password, in.PasswordConfirm)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, models.AuthResponseFromPair(pair, nil))
}

// VerifyEmail — GET /auth/verify-email/{token}.
// Невалидный/просроченный токен — 400.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if _, err := h.svc.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			apierrors.WriteCode(w, r, http.StatusBadRequest,
				"invalid_token", "token is invalid or has expired")
			return
		}

		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "email verified",
	})
}

// RequestVerification — POST /auth/request-verification (за гардом).
// Повторно отправляет письмо с токеном подтверждения.
func (h *Handlers) RequestVerification(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		apierrors.WriteCode(w, r, http.StatusUnauthorized,
			"unauthenticated", "authentication required")
		return
	}

	if err := h.svc.RequestEmailVerification(r.Context(), user.ID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:  "success",
		Message: "verification token sent to email",
	})
}
