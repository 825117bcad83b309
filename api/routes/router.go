package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/posworks/posgrid-backend/api/controllers"
	"github.com/posworks/posgrid-backend/api/middleware"
	"github.com/posworks/posgrid-backend/internal/auth"
	"github.com/posworks/posgrid-backend/internal/passwordreset"
	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/enums"
	"github.com/posworks/posgrid-backend/pkg/logger"
	"github.com/posworks/posgrid-backend/pkg/redis"
)

// Deps collects everything the HTTP surface needs. The caller owns the
// lifecycle of each dependency.
type Deps struct {
	Config          *config.Config
	Logger          *logger.Logger
	DB              controllers.Pinger
	Redis           *redis.Client
	Identity        middleware.IdentityLookup
	Sessions        middleware.SessionToucher
	SessionReader   controllers.SessionDirectory
	Engine          *authz.Engine
	AuthService     auth.Service
	RegisterService auth.RegisterService
	UsersService    users.Service
	ResetService    passwordreset.Service
}

// NewRouter assembles the full route tree with middleware applied.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	resetPolicy := middleware.NewAuthRateLimitPolicy(
		"password-reset",
		cfg.AuthRateLimit.ResetWindow,
		cfg.AuthRateLimit.ResetIPLimit,
		cfg.AuthRateLimit.ResetEmailLimit,
	)

	readiness := map[string]controllers.Pinger{
		"postgres": deps.DB,
		"redis":    deps.Redis,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness))
	})

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).
			Post("/login", controllers.AuthLogin(deps.AuthService, logg))
		r.With(middleware.Idempotency(deps.Redis, logg)).
			Post("/register", controllers.AuthRegister(deps.RegisterService, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.AuthService, logg))
		r.With(middleware.AuthRateLimit(resetPolicy, deps.Redis, logg)).
			Post("/forgot-password", controllers.AuthForgotPassword(deps.ResetService, logg))
		r.Get("/reset-password/{token}", controllers.AuthVerifyResetToken(deps.ResetService, logg))
		r.Post("/reset-password", controllers.AuthResetPassword(deps.ResetService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Identity, deps.Sessions, logg))
			r.Post("/logout", controllers.AuthLogout(deps.AuthService, logg))
			r.Post("/logout-all", controllers.AuthLogoutAll(deps.AuthService, logg))
		})
	})

	authn := middleware.Auth(cfg.JWT, deps.Identity, deps.Sessions, logg)

	r.With(authn).Get("/api/ping", controllers.PrivatePing())

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Use(middleware.RouteAccess(deps.Engine, logg))

		r.Route("/api/v1/sessions", func(r chi.Router) {
			r.Get("/me", controllers.SessionsListMine(deps.SessionReader, logg))
			r.With(middleware.Authorize(logg, enums.UserRoleSuperadmin, enums.UserRoleManager)).
				Get("/stats", controllers.SessionsStats(deps.SessionReader, logg))
		})

		r.Route("/api/v1/users", func(r chi.Router) {
			r.Use(middleware.Authorize(logg, enums.UserRoleSuperadmin, enums.UserRoleManager))
			r.Use(middleware.Idempotency(deps.Redis, logg))

			r.Get("/", controllers.UsersList(deps.UsersService, logg))
			r.Get("/pending", controllers.UsersListPending(deps.UsersService, logg))
			r.Post("/", controllers.UsersCreate(deps.RegisterService, logg))
			r.Get("/{userId}", controllers.UsersGet(deps.UsersService, logg))
			r.Post("/{userId}/approve", controllers.UsersApprove(deps.UsersService, logg))
			r.Post("/{userId}/reject", controllers.UsersReject(deps.UsersService, logg))
			r.Delete("/{userId}", controllers.UsersDelete(deps.UsersService, logg))
		})
	})

	return r
}
