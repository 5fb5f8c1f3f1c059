package authsdk

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// RefreshCookieName is the HTTP-only cookie the server sets to carry the
// refresh token. The client's cookie jar handles it automatically; the name
// is exported for callers that persist sessions across restarts.
const RefreshCookieName = "anchor_refresh"

// SDKClient is a client for the Anchor authentication service. It provides
// the unauthenticated operations and creates authenticated Sessions.
//
// The HTTP client carries a cookie jar so the refresh token set by the
// server travels back automatically on refresh and logout.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client for the service at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil)
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		},
	}
}

// Login authenticates with username and password and returns a Session.
//
// When the account has two-factor enabled the returned error is a
// *TwoFactorRequiredError carrying the challenge token; complete the login
// with CompleteTwoFactorLogin.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*Session, error) {
	var tokens TokenResponse
	err := c.postJSON(ctx, "/auth/login",
		LoginRequest{Username: username, Password: password}, &tokens)
	if err != nil {
		return nil, err
	}
	return newSession(c, &tokens), nil
}

// CompleteTwoFactorLogin redeems a login challenge with a TOTP code and
// returns the authenticated Session.
func (c *SDKClient) CompleteTwoFactorLogin(ctx context.Context, challengeToken, code string) (*Session, error) {
	var tokens TokenResponse
	err := c.postJSON(ctx, "/auth/login/2fa",
		TwoFactorLoginRequest{ChallengeToken: challengeToken, Code: code}, &tokens)
	if err != nil {
		return nil, err
	}
	return newSession(c, &tokens), nil
}

// ResumeSession rebuilds a Session from a stored refresh token, for example
// after a process restart. The token is rotated immediately.
func (c *SDKClient) ResumeSession(ctx context.Context, refreshToken string) (*Session, error) {
	var tokens TokenResponse
	err := c.postJSON(ctx, "/auth/refresh",
		RefreshRequest{RefreshToken: refreshToken}, &tokens)
	if err != nil {
		return nil, err
	}
	return newSession(c, &tokens), nil
}

// refreshCookieValue returns the refresh token currently held in the cookie
// jar, or "" when none is stored.
func (c *SDKClient) refreshCookieValue() string {
	if c.HTTPClient.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.BaseURL + "/auth/refresh")
	if err != nil {
		return ""
	}
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == RefreshCookieName {
			return ck.Value
		}
	}
	return ""
}

// Livez reports whether the service process is up.
func (c *SDKClient) Livez(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.getJSON(ctx, "/livez", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Readyz reports whether the service and its dependencies are ready.
func (c *SDKClient) Readyz(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.getJSON(ctx, "/readyz", &health); err != nil {
		return nil, err
	}
	return &health, nil
}
