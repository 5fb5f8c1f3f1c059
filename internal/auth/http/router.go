package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/anchorscm/anchor/internal/auth/domain"
	"github.com/anchorscm/anchor/internal/auth/service"
	"github.com/anchorscm/anchor/internal/auth/store"
	"github.com/anchorscm/anchor/pkg/authsdk"
	"github.com/anchorscm/anchor/pkg/httpx"
	"github.com/anchorscm/anchor/pkg/jwtx"
	"github.com/anchorscm/anchor/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	Keys     *jwtx.KeySet
	Verifier jwtx.Verifier
	Store    store.Store

	Tokens    *service.TokenService
	TwoFactor *service.TwoFactorService
	Users     *service.UserService

	// ElevationWindow bounds how long a step-up grant satisfies elevated
	// routes before the client must step up again.
	ElevationWindow time.Duration

	// SecureCookies marks the refresh cookie Secure. Off only for local
	// plain-HTTP development.
	SecureCookies bool

	StartedAt time.Time
	Version   string

	logger *slog.Logger
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	st store.Store,
	version string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:             http.NewServeMux(),
		Keys:            keys,
		Verifier:        verifier,
		Store:           st,
		ElevationWindow: jwtx.DefaultElevationWindow,
		SecureCookies:   true,
		StartedAt:       time.Now(),
		Version:         version,
		logger:          logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (rt *Router) ApplyRoutes() {
	rt.registerAuth()
	rt.registerUser()
	rt.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (rt *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(rt.Mux, rt.middlewares...).ServeHTTP(w, req)
}

func (rt *Router) registerAuth() {
	// Credential endpoints are limited by IP: nothing identifies the
	// caller yet, and these are the brute-force targets.
	rt.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(rt.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	rt.Mux.Handle("POST /auth/login/2fa",
		httpx.Chain(http.HandlerFunc(rt.HandleTwoFactorLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	rt.Mux.Handle("POST /auth/refresh",
		httpx.Chain(http.HandlerFunc(rt.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	rt.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(rt.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Step-up takes a bearer token, so limit per user rather than per IP.
	rt.Mux.Handle("POST /auth/step-up",
		httpx.Chain(http.HandlerFunc(rt.HandleStepUp),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (rt *Router) registerUser() {
	rt.Mux.Handle("POST /user/2fa/setup",
		httpx.Chain(http.HandlerFunc(rt.HandleTwoFactorSetup),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	rt.Mux.Handle("POST /user/2fa/enable",
		httpx.Chain(http.HandlerFunc(rt.HandleTwoFactorEnable),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	rt.Mux.Handle("GET /user/2fa/status",
		httpx.Chain(http.HandlerFunc(rt.HandleTwoFactorStatus),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)

	// Destructive account changes demand a fresh step-up grant on top of
	// a valid bearer token.
	rt.Mux.Handle("POST /user/2fa/disable",
		httpx.Chain(http.HandlerFunc(rt.HandleTwoFactorDisable),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RequireElevation(rt.ElevationWindow),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
	rt.Mux.Handle("POST /user/password",
		httpx.Chain(http.HandlerFunc(rt.HandleChangePassword),
			httpx.AuthnMiddleware(rt.Verifier),
			httpx.RequireElevation(rt.ElevationWindow),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (rt *Router) registerSystem() {
	rt.Mux.Handle("GET /livez",
		httpx.Chain(http.HandlerFunc(rt.HandleLivez),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	rt.Mux.Handle("GET /readyz",
		httpx.Chain(http.HandlerFunc(rt.HandleReadyz),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

// writeTokenPair serializes a token pair. The refresh token goes only into
// the HTTP-only cookie, never the body, so scripts in a browser cannot read
// it.
func (rt *Router) writeTokenPair(w http.ResponseWriter, pair *domain.TokenPair) {
	setRefreshCookie(w, pair.RefreshToken, rt.Tokens.RefreshTTL, rt.SecureCookies)
	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
		ExpiresIn:   int(pair.ExpiresIn.Seconds()),
	})
}
