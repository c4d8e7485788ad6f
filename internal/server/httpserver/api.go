package httpserver

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessioncookie"
	"github.com/go-chi/chi/v5"
)

type sessionView struct {
	User    *models.User    `json:"user"`
	Session *models.Session `json:"session"`
}

func (h *handlers) currentSession(r *http.Request) (*models.SessionWithUser, error) {
	token, _ := sessioncookie.Read(r)
	return h.Auth.GetSession(r.Context(), token)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sw, err := h.currentSession(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if sw == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{User: &sw.User, Session: &sw.Session})
}

func (h *handlers) startSession(w http.ResponseWriter, s models.Session) {
	sessioncookie.Write(w, s.Token, s.ExpiresAt, h.CookieSecure)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path string, err error) {
	http.Redirect(w, r, path+"?error="+url.QueryEscape(errorCodeParam(err)), http.StatusSeeOther)
}

type magicLinkRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *handlers) sendMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, common.ErrInvalidEmail)
		return
	}
	if err := h.Auth.SendMagicLink(r.Context(), req.Email, req.Name); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"status": true})
}

func (h *handlers) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sw, err := h.Auth.VerifyMagicLink(r.Context(), q.Get("token"), r.UserAgent())
	if err != nil {
		redirectWithError(w, r, common.LoginErrorPath, err)
		return
	}
	h.startSession(w, sw.Session)
	http.Redirect(w, r, safeCallback(q.Get("callbackURL"), common.ProfilePath), http.StatusSeeOther)
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	sw, err := h.Auth.VerifyEmail(r.Context(), r.URL.Query().Get("token"), r.UserAgent())
	if err != nil {
		redirectWithError(w, r, common.VerifyEmailPath, err)
		return
	}
	h.startSession(w, sw.Session)
	http.Redirect(w, r, common.ProfilePath, http.StatusSeeOther)
}

func (h *handlers) oauthStart(w http.ResponseWriter, r *http.Request) {
	start, err := h.Auth.OAuthStart(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	sessioncookie.WriteState(w, start.State, start.ExpiresAt, h.CookieSecure)
	http.Redirect(w, r, start.URL, http.StatusFound)
}

func (h *handlers) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessioncookie.ClearState(w, h.CookieSecure)
	if q.Get("error") != "" {
		http.Redirect(w, r, common.LoginErrorPath+"?error="+url.QueryEscape(q.Get("error")), http.StatusSeeOther)
		return
	}
	provider := chi.URLParam(r, "provider")
	// The state must have been issued to this browser.
	if !sessioncookie.StateMatches(r, q.Get("state")) {
		h.logger.Warn(r.Context(), "oauth callback", "provider", provider, "error", "state cookie mismatch")
		redirectWithError(w, r, common.LoginErrorPath, common.ErrAPIInvalidToken)
		return
	}
	sw, err := h.Auth.OAuthCallback(r.Context(), provider, q.Get("code"), q.Get("state"), r.UserAgent())
	if err != nil {
		h.logger.Warn(r.Context(), "oauth callback", "provider", provider, "error", err)
		redirectWithError(w, r, common.LoginErrorPath, err)
		return
	}
	h.startSession(w, sw.Session)
	http.Redirect(w, r, common.ProfilePath, http.StatusSeeOther)
}

type hasPermissionRequest struct {
	Permissions access.Request `json:"permissions"`
}

type hasPermissionResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

func (h *handlers) hasPermission(w http.ResponseWriter, r *http.Request) {
	var req hasPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiErrorBody{Code: common.CodeUnknown, Message: "Invalid request body"})
		return
	}
	sw, err := h.currentSession(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if sw == nil {
		writeAPIError(w, common.ErrorUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, hasPermissionResponse{Success: h.Auth.UserHasPermission(sw, req.Permissions)})
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	sw, err := h.currentSession(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if sw == nil {
		writeAPIError(w, common.ErrorUnauthorized)
		return
	}
	list, err := h.Auth.ListUsers(r.Context(), sw, r.URL.Query().Get("sortBy"))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list, "total": len(list)})
}

type presignRequest struct {
	ContentType string `json:"contentType"`
}

func (h *handlers) presignAvatar(w http.ResponseWriter, r *http.Request) {
	if h.Avatars == nil {
		writeJSON(w, http.StatusNotFound, apiErrorBody{Code: common.CodeUnknown, Message: "Avatar uploads are disabled"})
		return
	}
	sw, err := h.currentSession(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if sw == nil {
		writeAPIError(w, common.ErrorUnauthorized)
		return
	}

	var req presignRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, apiErrorBody{Code: common.CodeUnknown, Message: "Invalid request body"})
			return
		}
	}
	up, err := h.Avatars.PresignUpload(r.Context(), sw.User.ID, req.ContentType)
	if err != nil {
		h.logger.Error(r.Context(), "presign avatar", "error", err)
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}
