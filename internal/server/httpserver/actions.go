package httpserver

import (
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/server/actions"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessioncookie"
)

type actionFunc func(r *http.Request, token string) actions.Result

// action adapts an action to a form POST. Redirect results answer 303 so
// the client follows with a GET.
func (h *handlers) action(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, actions.Failed("Invalid form"))
			return
		}
		token, _ := sessioncookie.Read(r)
		h.writeResult(w, r, fn(r, token))
	}
}

func (h *handlers) writeResult(w http.ResponseWriter, r *http.Request, res actions.Result) {
	if res.ClearSession {
		sessioncookie.Clear(w, h.CookieSecure)
	}
	if res.Session != nil {
		sessioncookie.Write(w, res.Session.Token, res.Session.ExpiresAt, h.CookieSecure)
	}
	if res.Redirect != "" {
		http.Redirect(w, r, res.Redirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, res.Reply)
}

func (h *handlers) signIn(r *http.Request, _ string) actions.Result {
	return h.Actions.SignIn(r.Context(), actions.SignInForm{
		Email:     r.PostForm.Get("email"),
		Password:  r.PostForm.Get("password"),
		UserAgent: r.UserAgent(),
	})
}

func (h *handlers) signUp(r *http.Request, _ string) actions.Result {
	return h.Actions.SignUp(r.Context(), actions.SignUpForm{
		Name:     r.PostForm.Get("name"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	})
}

func (h *handlers) signOut(r *http.Request, token string) actions.Result {
	return h.Actions.SignOut(r.Context(), token)
}

func (h *handlers) changePassword(r *http.Request, token string) actions.Result {
	return h.Actions.ChangePassword(r.Context(), token, r.PostForm.Get("currentPassword"), r.PostForm.Get("newPassword"))
}

func (h *handlers) updateUser(r *http.Request, token string) actions.Result {
	return h.Actions.UpdateUser(r.Context(), token, r.PostForm.Get("name"), r.PostForm.Get("image"))
}

func (h *handlers) setRole(r *http.Request, token string) actions.Result {
	return h.Actions.SetRole(r.Context(), token, r.PostForm.Get("userId"), r.PostForm.Get("role"))
}

func (h *handlers) deleteUser(r *http.Request, token string) actions.Result {
	return h.Actions.DeleteUser(r.Context(), token, r.PostForm.Get("userId"))
}

func (h *handlers) requestPasswordReset(r *http.Request, _ string) actions.Result {
	return h.Actions.RequestPasswordReset(r.Context(), r.PostForm.Get("email"))
}

func (h *handlers) resetPassword(r *http.Request, _ string) actions.Result {
	return h.Actions.ResetPassword(r.Context(), r.PostForm.Get("token"), r.PostForm.Get("newPassword"))
}

func (h *handlers) sendVerificationEmail(r *http.Request, _ string) actions.Result {
	return h.Actions.SendVerificationEmail(r.Context(), r.PostForm.Get("email"))
}
