package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/actions"
	"github.com/dmitrijs2005/gatekeeper/internal/server/avatars"
	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the collaborators of the HTTP layer. Avatars and Metrics may be
// nil.
type Deps struct {
	Auth    *services.AuthService
	Guard   *guard.Guard
	Actions *actions.Actions
	Avatars *avatars.Service
	Metrics *metrics.Metrics
	Logger  logging.Logger

	GateRules    gate.Rules
	CookieSecure bool
	EmailDomains []string
}

type handlers struct {
	Deps
	logger logging.Logger
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop{}
	}
	h := &handlers{Deps: d, logger: d.Logger.With("module", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(gate.Middleware(d.GateRules, d.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", d.Metrics.Handler())

	r.Get("/", h.home)
	r.Get("/profile", h.profile)
	r.Get("/admin/dashboard", h.dashboard)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.loginPage)
		r.Get("/login/error", h.loginErrorPage)
		r.Get("/register", h.registerPage)
		r.Get("/forgot-password", h.forgotPasswordPage)
		r.Get("/forgot-password/success", h.forgotPasswordSuccessPage)
		r.Get("/reset-password", h.resetPasswordPage)
		r.Get("/verify", h.verifyPage)
	})

	r.Route("/actions", func(r chi.Router) {
		r.Post("/sign-in", h.action(h.signIn))
		r.Post("/sign-up", h.action(h.signUp))
		r.Post("/sign-out", h.action(h.signOut))
		r.Post("/change-password", h.action(h.changePassword))
		r.Post("/update-user", h.action(h.updateUser))
		r.Post("/set-role", h.action(h.setRole))
		r.Post("/delete-user", h.action(h.deleteUser))
		r.Post("/request-password-reset", h.action(h.requestPasswordReset))
		r.Post("/reset-password", h.action(h.resetPassword))
		r.Post("/send-verification-email", h.action(h.sendVerificationEmail))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/session", h.getSession)
		r.Post("/magic-link", h.sendMagicLink)
		r.Get("/magic-link/verify", h.verifyMagicLink)
		r.Get("/verify-email", h.verifyEmail)
		r.Get("/oauth/{provider}", h.oauthStart)
		r.Get("/callback/{provider}", h.oauthCallback)
		r.Post("/admin/has-permission", h.hasPermission)
		r.Get("/admin/list-users", h.listUsers)
		r.Post("/avatar/presign", h.presignAvatar)
	})

	return r
}
