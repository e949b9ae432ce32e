package http

import (
	"net/http"
	"time"

	"github.com/mkozyreva/accounts-service/internal/config"
	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/transport/http/middleware"
)

// RefreshTokenCookie — имя cookie с refresh-токеном.
const RefreshTokenCookie = "refresh_token"

// cookieWriter выставляет httpOnly-куки с токенами.
// Secure включается для env=prod, SameSite всегда Strict.
type cookieWriter struct {
	cfg    config.CookieConfig
	secure bool
}

func newCookieWriter(cfg config.CookieConfig, env string) cookieWriter {
	return cookieWriter{cfg: cfg, secure: env == config.EnvProd}
}

// setAuthCookies пишет пару access/refresh кук.
func (c cookieWriter) setAuthCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, pair.AccessToken, c.cfg.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, pair.RefreshToken, c.cfg.RefreshTTL))
}

// clearAuthCookies гасит обе куки (logout).
func (c cookieWriter) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.expired(middleware.AccessTokenCookie))
	http.SetCookie(w, c.expired(RefreshTokenCookie))
}

func (c cookieWriter) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (c cookieWriter) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.cfg.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
