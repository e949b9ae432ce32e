package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkozyreva/accounts-service/internal/config"
	dmodels "github.com/mkozyreva/accounts-service/internal/models"
	"github.com/mkozyreva/accounts-service/internal/service"
	"github.com/mkozyreva/accounts-service/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
	Cookies  config.CookieConfig
	Env      string
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := &Handlers{
		svc:     svc,
		cookies: newCookieWriter(opts.Cookies, opts.Env),
	}

	guard := middleware.Authn(svc)
	softGuard := middleware.OptionalAuthn(svc)
	adminOnly := middleware.RequireRoles(dmodels.RoleAdmin)

	register := func(r chi.Router) {
		// auth: публичные операции
		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/refresh-token", h.Refresh)
		// разлогин работает и с просроченным access-токеном: мягкий гард
		// лишь добавляет user_id в лог, когда токен ещё валиден.
		r.With(softGuard).Post("/auth/logout", h.Logout)
		r.Post("/auth/forgot-password", h.ForgotPassword)
		r.Patch("/auth/reset-password/{token}", h.ResetPassword)
		r.Get("/auth/verify-email/{token}", h.VerifyEmail)

		// auth: за гардом
		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Patch("/auth/update-password", h.UpdatePassword)
			r.Post("/auth/request-verification", h.RequestVerification)
		})

		// профиль текущего пользователя
		r.Group(func(r chi.Router) {
			r.Use(guard)
			r.Get("/users/me", h.Me)
			r.Patch("/users/me", h.UpdateMe)
			r.Delete("/users/me", h.DeactivateMe)
		})

		// администрирование
		r.Group(func(r chi.Router) {
			r.Use(guard, adminOnly)
			r.Get("/users", h.ListUsers)
			r.Get("/users/{id}", h.GetUser)
			r.Patch("/users/{id}", h.UpdateUser)
			r.Delete("/users/{id}", h.DeleteUser)
		})
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		register(sub)
		root.Mount(opts.BasePath, sub)
		return root
	}

	register(root)
	return root
}
