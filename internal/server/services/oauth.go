package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"

	oauthStateIdentifier = "oauth-state:"
)

// Profile is the identity returned by a provider's user-info endpoint.
type Profile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Image         string
}

type profileFetcher func(ctx context.Context, client *http.Client, userInfoURL string) (*Profile, error)

type OAuthProvider struct {
	ID          string
	Config      *oauth2.Config
	UserInfoURL string
	fetch       profileFetcher
}

func callbackURL(baseURL, provider string) string {
	return strings.TrimRight(baseURL, "/") + "/api/auth/callback/" + provider
}

func GoogleProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		ID: ProviderGoogle,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		fetch:       fetchGoogleProfile,
	}
}

func GitHubProvider(clientID, clientSecret, redirectURL string) *OAuthProvider {
	return &OAuthProvider{
		ID: ProviderGitHub,
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		fetch:       fetchGitHubProfile,
	}
}

// NewOAuthProviders builds the providers that have a client ID configured.
func NewOAuthProviders(cfg *config.Config) map[string]*OAuthProvider {
	out := map[string]*OAuthProvider{}
	if cfg.Google.ClientID != "" {
		out[ProviderGoogle] = GoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, callbackURL(cfg.BaseURL, ProviderGoogle))
	}
	if cfg.GitHub.ClientID != "" {
		out[ProviderGitHub] = GitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, callbackURL(cfg.BaseURL, ProviderGitHub))
	}
	return out
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fetchGoogleProfile(ctx context.Context, client *http.Client, userInfoURL string) (*Profile, error) {
	var payload struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, client, userInfoURL, &payload); err != nil {
		return nil, err
	}
	return &Profile{
		ID:            payload.Sub,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
		Image:         payload.Picture,
	}, nil
}

func fetchGitHubProfile(ctx context.Context, client *http.Client, userInfoURL string) (*Profile, error) {
	var payload struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, userInfoURL, &payload); err != nil {
		return nil, err
	}

	p := &Profile{
		ID:    strconv.FormatInt(payload.ID, 10),
		Email: payload.Email,
		Name:  payload.Name,
		Image: payload.AvatarURL,
	}
	if p.Name == "" {
		p.Name = payload.Login
	}

	// The public profile omits private addresses; the emails endpoint has
	// them along with the verified flag.
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, userInfoURL+"/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary || strings.EqualFold(e.Email, p.Email) {
			p.Email = e.Email
			p.EmailVerified = e.Verified
			break
		}
	}
	return p, nil
}

// OAuthProviders lists the enabled provider IDs.
func (s *AuthService) OAuthProviders() []string {
	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OAuthRedirect starts a provider login. State must come back unchanged
// from the same browser before ExpiresAt.
type OAuthRedirect struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

// OAuthStart stores a state/PKCE verifier pair and returns the provider
// authorization URL.
func (s *AuthService) OAuthStart(ctx context.Context, providerID string) (*OAuthRedirect, error) {
	p, ok := s.providers[providerID]
	if !ok {
		return nil, common.ErrProviderNotFound
	}

	state, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("error generating state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	v := &models.Verification{
		Identifier: oauthStateIdentifier + providerID,
		Token:      state,
		Value:      verifier,
		ExpiresAt:  s.now().Add(s.oauthStateTTL),
	}
	if err := s.repomanager.Verifications(s.db).Create(ctx, v); err != nil {
		return nil, fmt.Errorf("error storing oauth state: %w", err)
	}

	return &OAuthRedirect{
		URL:       p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)),
		State:     state,
		ExpiresAt: v.ExpiresAt,
	}, nil
}

// OAuthCallback completes the authorization code flow. A known provider
// identity signs its user in; an unknown identity whose e-mail already
// belongs to a user is rejected with ACCOUNT_NOT_LINKED; otherwise a new
// user and link are created.
func (s *AuthService) OAuthCallback(ctx context.Context, providerID, code, state, userAgent string) (sw *models.SessionWithUser, err error) {
	defer func() { s.metrics.AuthEvent("oauth_"+providerID, err) }()

	p, ok := s.providers[providerID]
	if !ok {
		return nil, common.ErrProviderNotFound
	}

	v, err := s.repomanager.Verifications(s.db).Consume(ctx, state)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAPIInvalidToken
		}
		return nil, fmt.Errorf("error consuming oauth state: %w", err)
	}
	if v.Identifier != oauthStateIdentifier+providerID {
		return nil, common.ErrAPIInvalidToken
	}
	if !s.now().Before(v.ExpiresAt) {
		return nil, common.ErrAPITokenExpired
	}

	tok, err := p.Config.Exchange(ctx, code, oauth2.VerifierOption(v.Value))
	if err != nil {
		return nil, fmt.Errorf("error exchanging code: %w", err)
	}
	profile, err := p.fetch(ctx, p.Config.Client(ctx, tok), p.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("error fetching profile: %w", err)
	}
	if profile.ID == "" || validEmail(profile.Email) != nil {
		return nil, common.ErrInvalidEmail
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.userForProfile(ctx, tx, providerID, profile)
		if err != nil {
			return err
		}
		sess, err := s.sessions.CreateTx(ctx, tx, u.ID, userAgent)
		if err != nil {
			return err
		}
		sw = &models.SessionWithUser{Session: *sess, User: *u}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sw, nil
}

func (s *AuthService) userForProfile(ctx context.Context, tx dbx.DBTX, providerID string, profile *Profile) (*models.User, error) {
	accounts := s.repomanager.Accounts(tx)
	users := s.repomanager.Users(tx)

	userID, err := accounts.FindUserID(ctx, providerID, profile.ID)
	switch {
	case err == nil:
		u, err := users.GetByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("error searching user: %w", err)
		}
		return u, nil
	case !errors.Is(err, common.ErrorNotFound):
		return nil, fmt.Errorf("error searching account: %w", err)
	}

	if _, err := users.GetByEmail(ctx, profile.Email); err == nil {
		return nil, common.ErrAccountNotLinked
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	d := Draft{Name: profile.Name, Email: profile.Email}
	if d.Name == "" {
		d.Name = localPart(profile.Email)
	}
	if err := s.pipeline.Run(ctx, OpOAuthSignUp, &d); err != nil {
		return nil, err
	}

	var image *string
	if profile.Image != "" {
		image = &profile.Image
	}
	u, err := s.createUser(ctx, tx, d, "", profile.EmailVerified, image)
	if err != nil {
		return nil, err
	}

	if err := accounts.Create(ctx, &models.Account{UserID: u.ID, Provider: providerID, AccountID: profile.ID}); err != nil {
		return nil, fmt.Errorf("error linking account: %w", err)
	}
	return u, nil
}
