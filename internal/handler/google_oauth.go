package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"hhfoundation/config"
	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo?id_token="
)

// GoogleOAuthHandler signs in existing accounts with Google. New accounts must register with a sponsor.
type GoogleOAuthHandler struct {
	cfg     *config.Config
	authSvc *service.AuthService
	auth    *AuthHandler
	client  *http.Client
}

func NewGoogleOAuthHandler(cfg *config.Config, authSvc *service.AuthService, authHandler *AuthHandler) *GoogleOAuthHandler {
	return &GoogleOAuthHandler{cfg: cfg, authSvc: authSvc, auth: authHandler, client: http.DefaultClient}
}

func (h *GoogleOAuthHandler) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.cfg.OAuth.GoogleClientID,
		ClientSecret: h.cfg.OAuth.GoogleClientSecret,
		RedirectURL:  h.cfg.OAuth.GoogleRedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
		Endpoint:     google.Endpoint,
	}
}

func (h *GoogleOAuthHandler) configured(c *gin.Context) bool {
	if h.cfg.OAuth.GoogleClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google OAuth not configured", "request_id": middleware.GetRequestID(c)})
		return false
	}
	return true
}

// Redirect sends the browser to the Google consent screen.
func (h *GoogleOAuthHandler) Redirect(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	c.Redirect(http.StatusFound, h.OAuth2Config().AuthCodeURL("state", oauth2.AccessTypeOffline))
}

type googleIdentity struct {
	ID            string `json:"id"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	EmailVerified string `json:"email_verified"`
	Aud           string `json:"aud"`
}

func (g *googleIdentity) googleID() string {
	if g.Sub != "" {
		return g.Sub
	}
	return g.ID
}

func (g *googleIdentity) verified() bool {
	return g.VerifiedEmail || g.EmailVerified == "true"
}

// Callback exchanges the authorization code and signs the user in.
func (h *GoogleOAuthHandler) Callback(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "missing code")
		return
	}
	ctx := c.Request.Context()
	conf := h.OAuth2Config()
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		badRequest(c, "exchange failed")
		return
	}
	var info googleIdentity
	if err := fetchJSON(conf.Client(ctx, tok), googleUserInfoURL, &info); err != nil {
		fail(c, err)
		return
	}
	h.finish(c, &info)
}

// Token accepts an ID token from the mobile google_sign_in flow.
func (h *GoogleOAuthHandler) Token(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "id_token required")
		return
	}
	var info googleIdentity
	if err := fetchJSON(h.client, googleTokenInfoURL+url.QueryEscape(req.IDToken), &info); err != nil {
		badRequest(c, "invalid id_token")
		return
	}
	if info.Aud != "" && info.Aud != h.cfg.OAuth.GoogleClientID {
		badRequest(c, "id_token issued for another client")
		return
	}
	h.finish(c, &info)
}

func (h *GoogleOAuthHandler) finish(c *gin.Context, info *googleIdentity) {
	if info.googleID() == "" || info.Email == "" || !info.verified() {
		badRequest(c, "Google account has no verified email")
		return
	}
	u, access, refresh, err := h.authSvc.LoginWithGoogle(c.Request.Context(), info.googleID(), info.Email)
	if err != nil {
		fail(c, err)
		return
	}
	if h.auth != nil {
		h.auth.record(c, u.ID, "auth.google_login")
	}
	session(c, http.StatusOK, u, access, refresh)
}

func fetchJSON(client *http.Client, u string, out interface{}) error {
	resp, err := client.Get(u)
	if err != nil {
		return errors.Wrap(err, "google request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("google returned %d", resp.StatusCode)
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode google response")
}
