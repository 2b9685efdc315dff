package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"clouddrive/internal/auth"
	"clouddrive/internal/domain"
	"clouddrive/internal/middleware"
	"clouddrive/internal/service"
)

// Services - сервисы, которые обслуживает HTTP API.
type Services struct {
	Auth    *service.AuthService
	Tokens  *service.TokenService
	Users   *service.UserService
	Items   *service.DriveItemService
	Files   *service.FileService
	Folders *service.FolderService
	Perms   *service.PermissionService
}

// RateLimits задает лимиты на одно окно для одного IP. NewLimiter == nil
// отключает ограничение.
type RateLimits struct {
	Global     int
	SignUp     int
	SignIn     int
	NewLimiter func(limit int) middleware.Limiter
}

type RouterConfig struct {
	CORSOrigins []string
	// RequestTimeout не применяется к загрузке, скачиванию и превью.
	RequestTimeout time.Duration
	RateLimits     RateLimits
}

func (c RateLimits) middleware(name string, limit int) func(http.Handler) http.Handler {
	if c.NewLimiter == nil || limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.RateLimit(name, limit, c.NewLimiter(limit), WriteError)
}

func NewRouter(s Services, authMW *auth.Middleware, db Pinger, cfg RouterConfig) http.Handler {
	authH := NewAuthHandler(s.Auth, s.Tokens)
	userH := NewUserHandler(s.Users)
	itemH := NewDriveItemHandler(s.Items)
	fileH := NewFileHandler(s.Files)
	folderH := NewFolderHandler(s.Folders)
	permH := NewPermissionHandler(s.Perms)
	healthH := NewHealthHandler(db)

	allowCredentials := true
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			allowCredentials = false
		}
	}

	timeout := func(next http.Handler) http.Handler { return next }
	if cfg.RequestTimeout > 0 {
		timeout = chimw.Timeout(cfg.RequestTimeout)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer(WriteError))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "Content-Range", "Retry-After"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))
	r.Use(cfg.RateLimits.middleware("global", cfg.RateLimits.Global))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, domain.NotFound("Cannot "+r.Method+" "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, domain.NotFound("Cannot "+r.Method+" "+r.URL.Path))
	})

	r.With(timeout).Get("/health", healthH.Check)

	r.Route("/auth", func(r chi.Router) {
		r.Use(timeout)
		r.With(cfg.RateLimits.middleware("sign-up", cfg.RateLimits.SignUp)).Post("/sign-up", authH.SignUp)
		r.With(cfg.RateLimits.middleware("sign-in", cfg.RateLimits.SignIn)).Post("/sign-in", authH.SignIn)
		r.With(authMW.RequireRefresh).Get("/refresh", authH.Refresh)
		r.With(authMW.RequireAccess).Get("/logout", authH.Logout)
		r.Get("/verify-email", authH.VerifyEmail)
		r.Post("/resend-verification", authH.ResendVerification)
		r.Post("/forgot-password", authH.ForgotPassword)
		r.Post("/reset-password", authH.ResetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAccess)

		// потоковые маршруты без общего таймаута
		r.Post("/files/upload", fileH.Upload)
		r.Get("/files/{id}/preview", fileH.Preview)
		r.Get("/drive-items/{id}/download", itemH.Download)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.With(authMW.RequireRole(domain.RoleAdmin)).Get("/users", userH.List)
			r.Get("/users/me", userH.Me)
			r.Get("/users/{username}", userH.ByUsername)

			r.Get("/drive-items", itemH.List)
			r.Get("/drive-items/trash", itemH.ListTrash)
			r.Get("/drive-items/shared", itemH.ListShared)
			r.Get("/drive-items/{id}", itemH.Detail)
			r.Patch("/drive-items/{id}", itemH.Update)
			r.Delete("/drive-items/{id}", itemH.Trash)
			r.Delete("/drive-items/{id}/permanent", itemH.PermanentDelete)
			r.Patch("/drive-items/{id}/restore", itemH.Restore)

			r.Post("/drive-items/{id}/permissions", permH.Grant)
			r.Get("/drive-items/{id}/permissions", permH.List)
			r.Delete("/drive-items/{id}/permissions/{userId}", permH.Revoke)

			r.Get("/files/{id}", fileH.Detail)
			r.Post("/folders", folderH.Create)
		})
	})

	return r
}
