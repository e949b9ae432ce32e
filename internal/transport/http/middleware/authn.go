package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/service"
	"github.com/mkozyreva/accounts-service/internal/transport/http/apierrors"
)

type ctxKey int

const ctxUserKey ctxKey = iota

// AccessTokenCookie — имя cookie, из которой гард читает access-токен,
// если заголовок Authorization пуст.
const AccessTokenCookie = "access_token"

// Authenticator — контракт сервисного слоя, нужный гарду сессий.
type Authenticator interface {
	// ValidateAccessToken проверяет подпись/срок access-токена и возвращает
	// ID пользователя и момент выпуска токена.
	ValidateAccessToken(token string) (uuid.UUID, time.Time, error)
	// ProfileByID возвращает актуальное состояние учётной записи.
	ProfileByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authn — гард сессий. Порядок проверок:
//  1. извлекаем bearer-токен из Authorization либо из cookie access_token;
//  2. проверяем подпись и срок действия;
//  3. пользователь должен существовать и быть активен;
//  4. пароль не должен быть сменён после выпуска токена.
//
// Успех кладёт *models.User в контекст запроса (CurrentUser).
func Authn(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticate(w, r, auth, true)
			if !ok {
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// OptionalAuthn — мягкий вариант гарда: при любой проблеме с токеном
// запрос продолжается анонимно, CurrentUser вернёт (nil, false).
func OptionalAuthn(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := authenticate(nil, r, auth, false); ok {
				r = r.WithContext(withUser(r.Context(), user))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles пропускает запрос только если роль аутентифицированного
// пользователя входит в список. Ставится после Authn.
func RequireRoles(roles ...models.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := CurrentUser(r.Context())
			if !ok {
				apierrors.WriteCode(w, r, http.StatusUnauthorized,
					"unauthenticated", "authentication required")
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			apierrors.WriteCode(w, r, http.StatusForbidden,
				"forbidden", "insufficient permissions")
		})
	}
}

// CurrentUser возвращает пользователя, положенного гардом в контекст.
func CurrentUser(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ctxUserKey).(*models.User)
	return user, ok
}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxUserKey, user)
}

// authenticate — общая логика строгого и мягкого гарда.
// При strict=false ошибки не пишутся в ResponseWriter (он может быть nil).
func authenticate(w http.ResponseWriter, r *http.Request, auth Authenticator, strict bool) (*models.User, bool) {
	token := extractToken(r)
	if token == "" {
		if strict {
			apierrors.WriteCode(w, r, http.StatusUnauthorized,
				"missing_token", "you are not logged in, please log in to get access")
		}
		return nil, false
	}

	uid, issuedAt, err := auth.ValidateAccessToken(token)
	if err != nil {
		if strict {
			apierrors.WriteError(w, r, err)
		}
		return nil, false
	}

	user, err := auth.ProfileByID(r.Context(), uid)
	if err != nil {
		if !strict {
			return nil, false
		}

		if errors.Is(err, service.ErrNotFound) {
			apierrors.WriteCode(w, r, http.StatusUnauthorized,
				"user_not_found", "the user belonging to this token no longer exists")
			return nil, false
		}

		apierrors.WriteError(w, r, err)
		return nil, false
	}

	if !user.Active {
		if strict {
			apierrors.WriteCode(w, r, http.StatusUnauthorized,
				"account_deactivated", "this account has been deactivated")
		}
		return nil, false
	}

	if !issuedAt.IsZero() && user.PasswordChangedAt.After(issuedAt) {
		if strict {
			apierrors.WriteCode(w, r, http.StatusUnauthorized,
				"password_changed", "password was recently changed, please log in again")
		}
		return nil, false
	}

	return user, true
}

// extractToken достаёт access-токен: Authorization: Bearer ... либо cookie.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) && len(auth) > len(prefix) {
			if token := strings.TrimSpace(auth[len(prefix):]); token != "" {
				return token
			}
		}
		return ""
	}

	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}

	return ""
}
