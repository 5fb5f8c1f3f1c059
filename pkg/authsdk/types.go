package authsdk

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	// Error is the machine-readable error code (e.g., "invalid_credentials")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// TokenResponse is returned by login, 2fa completion, and refresh. The
// refresh token never appears in the body; it travels only in the HTTP-only
// cookie named RefreshCookieName.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`
}

// StepUpResponse is returned by the step-up endpoint. Only the access token
// changes; the refresh chain is untouched.
type StepUpResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// LoginRequest starts a session with username and password.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TwoFactorLoginRequest completes a login challenge with a TOTP code.
type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

// RefreshRequest redeems a refresh token. The token may instead travel in
// the HTTP-only cookie; the body field wins when both are present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// StepUpRequest re-verifies credentials for elevation. Password is always
// required; two-factor accounts send Code as well.
type StepUpRequest struct {
	Password string `json:"password"`
	Code     string `json:"code,omitempty"`
}

// TwoFactorSetupResponse is returned when enrollment starts.
type TwoFactorSetupResponse struct {
	Secret  string `json:"secret"`
	URI     string `json:"uri"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TwoFactorEnableRequest confirms an enrollment with a code from the app.
type TwoFactorEnableRequest struct {
	Code string `json:"code"`
}

// TwoFactorStatusResponse describes the account's two-factor state.
type TwoFactorStatusResponse struct {
	Enabled      bool   `json:"enabled"`
	PendingSetup bool   `json:"pending_setup"`
	EnabledAt    string `json:"enabled_at,omitempty"`
}

// ChangePasswordRequest swaps the account password. Every refresh token the
// user holds is revoked on success.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

// HealthResponse is returned by the livez and readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// UserResponse is the public shape of an account.
type UserResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at"`
}
