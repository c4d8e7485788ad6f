package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessioncookie"
)

// Page view models are plain JSON; rendering is left to the client.

type forbiddenView struct {
	Status string `json:"status"`
}

// guardPage runs the page guard and writes the response for any outcome
// other than Continue.
func (h *handlers) guardPage(w http.ResponseWriter, r *http.Request, role models.Role) (*models.SessionWithUser, bool) {
	token, _ := sessioncookie.Read(r)
	o := h.Guard.Page(r.Context(), token, role)

	switch o.Kind {
	case guard.KindRedirect:
		http.Redirect(w, r, o.Location, http.StatusSeeOther)
		return nil, false
	case guard.KindFail:
		if guard.IsForbidden(o.Err) {
			writeJSON(w, http.StatusForbidden, forbiddenView{Status: "FORBIDDEN"})
			return nil, false
		}
		h.logger.Error(r.Context(), "page guard", "path", r.URL.Path, "error", o.Err)
		writeAPIError(w, o.Err)
		return nil, false
	}
	return o.Session, true
}

type homeView struct {
	User *models.User `json:"user"`
}

func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	token, _ := sessioncookie.Read(r)
	sw, err := h.Auth.GetSession(r.Context(), token)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	v := homeView{}
	if sw != nil {
		v.User = &sw.User
	}
	writeJSON(w, http.StatusOK, v)
}

type profileView struct {
	User           models.User    `json:"user"`
	Session        models.Session `json:"session"`
	IsAdmin        bool           `json:"isAdmin"`
	FullPostAccess bool           `json:"fullPostAccess"`
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	sw, ok := h.guardPage(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		User:           sw.User,
		Session:        sw.Session,
		IsAdmin:        sw.User.IsAdmin(),
		FullPostAccess: h.Auth.UserHasPermission(sw, access.PermFullPostAccess),
	})
}

type dashboardUser struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	Deletable bool        `json:"deletable"`
}

type dashboardView struct {
	Status     string          `json:"status"`
	CanSetRole bool            `json:"canSetRole"`
	Users      []dashboardUser `json:"users"`
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	sw, ok := h.guardPage(w, r, models.RoleAdmin)
	if !ok {
		return
	}

	list, err := h.Auth.ListUsers(r.Context(), sw, users.SortByName)
	if err != nil {
		if guard.IsForbidden(err) {
			writeJSON(w, http.StatusForbidden, forbiddenView{Status: "FORBIDDEN"})
			return
		}
		h.logger.Error(r.Context(), "list users", "error", err)
		writeAPIError(w, err)
		return
	}

	v := dashboardView{
		Status:     "ACCESS GRANTED",
		CanSetRole: h.Auth.UserHasPermission(sw, access.PermSetRole),
		Users:      make([]dashboardUser, 0, len(list)),
	}
	for _, u := range list {
		v.Users = append(v.Users, dashboardUser{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Role:      u.Role,
			Deletable: u.Role == models.RoleUser,
		})
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "login", "providers": h.Auth.OAuthProviders()})
}

func (h *handlers) registerPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "register", "emailDomains": h.EmailDomains})
}

func (h *handlers) forgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "forgot-password"})
}

func (h *handlers) forgotPasswordSuccessPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"page":    "forgot-password-success",
		"message": "A reset link has been sent to your email.",
	})
}

func (h *handlers) resetPasswordPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, common.LoginPath, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": "reset-password", "token": token})
}

func verifyMessage(code string) string {
	switch code {
	case "invalid_token", "token_expired":
		return "Your token is invalid or expired. Please request a new one."
	case "email_not_verified":
		return "Please verify your email, or request a new verification below"
	default:
		return "Oops! Something went wrong. Please try again."
	}
}

func (h *handlers) verifyPage(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	if code == "" {
		http.Redirect(w, r, common.ProfilePath, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": "verify", "error": code, "message": verifyMessage(code)})
}

func loginErrorMessage(code string) string {
	switch code {
	case "account_not_linked":
		return "This account is already registered with a different sign-in method."
	case "invalid_token", "token_expired":
		return "Your link is invalid or expired. Please request a new one."
	default:
		return "Oops! Something went wrong. Please try again."
	}
}

func (h *handlers) loginErrorPage(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	writeJSON(w, http.StatusOK, map[string]any{"page": "login-error", "error": code, "message": loginErrorMessage(code)})
}
