package http

import (
	"log/slog"
	"net/http"

	logctx "github.com/mkozyreva/accounts-service/internal/pkg/log"
	"github.com/mkozyreva/accounts-service/internal/service"
	"github.com/mkozyreva/accounts-service/internal/transport/http/apierrors"
	"github.com/mkozyreva/accounts-service/internal/transport/http/middleware"
	"github.com/mkozyreva/accounts-service/internal/transport/http/models"
)

// Signup — POST /auth/signup.
// Создаёт учётную запись, выпускает пару токенов, ставит куки; 201.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var in models.SignupRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	pair, user, err := h.svc.RegisterUser(r.Context(), service.RegisterInput{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Email:           in.Email,
		Username:        in.Username,
		Password:        in.Password,
		PasswordConfirm: in.PasswordConfirm,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeJSON(w, http.StatusCreated, models.AuthResponseFromPair(pair, user))
}

// Login — POST /auth/login.
// 200 с парой токенов, 401 при неверных кредах, 423 при блокировке.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, service.ErrInvalidArgument)
		return
	}

	pair, user, err := h.svc.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, models.AuthResponseFromPair(pair, user))
}

// Refresh — POST /auth/refresh-token.
// Refresh-токен берётся из cookie, fallback — поле тела запроса.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromRequest(r)
	if token == "" {
		apierrors.WriteError(w, r, service.ErrInvalidToken)
		return
	}

	pair, user, err := h.svc.RefreshToken(r.Context(), token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.cookies.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, models.AuthResponseFromPair(pair, user))
}

// Logout — POST /auth/logout.
// Отзывает refresh-токен (если он есть) и гасит куки; 204 в любом случае.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.CurrentUser(r.Context()); ok {
		logctx.From(r.Context()).Info("logout",
			slog.String("user_id", user.ID.String()),
		)
	}

	if token := refreshTokenFromRequest(r); token != "" {
		// Уже отозванный или неизвестный токен не мешает разлогину.
		_ = h.svc.RevokeToken(r.Context(), token)
	}

	h.cookies.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// refreshTokenFromRequest достаёт refresh-токен: cookie, затем тело.
func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(RefreshTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	var in models.RefreshRequest
	if err := decodeStrict(r, &in); err == nil {
		return in.RefreshToken
	}

	return ""
}
