package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anchorscm/anchor/pkg/httpx"
)

// Error codes shared between the auth service and this SDK. The server
// writes them; the client parses them back into the typed values below.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeTwoFactorRequired   = "2fa_required"
	ErrorCodeInvalidCode         = "invalid_code"
	ErrorCodeChallengeExpired    = "challenge_expired"
	ErrorCodeTooManyAttempts     = "too_many_attempts"
	ErrorCodeTokenExpired        = "token_expired"
	ErrorCodeTokenRevoked        = "token_revoked"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeElevationRequired   = "elevation_required"
	ErrorCodeElevationExpired    = "elevation_expired"
	ErrorCodeTwoFactorEnabled    = "2fa_already_enabled"
	ErrorCodeTwoFactorNotEnabled = "2fa_not_enabled"
	ErrorCodeNoPendingEnrollment = "no_pending_enrollment"
	ErrorCodeMalformedSecret     = "malformed_secret"
	ErrorCodeUsernameTaken       = "username_taken"
	ErrorCodeWeakPassword        = "weak_password"
	ErrorCodeServerError         = "server_error"
)

// APIError is the wire error shape for every non-2xx response. It implements
// the error interface and is used both by the server (to write HTTP
// responses) and by the SDK client (to represent errors).
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is the machine-readable error code (e.g., "invalid_credentials")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// Predefined errors. Handlers pick from these; the SDK compares against
// them with errors.Is after parsing.
var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCredentials,
		Description: "invalid credentials",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the verification code is not valid",
	}

	ErrChallengeExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeChallengeExpired,
		Description: "the login challenge has expired, start over",
	}

	ErrTooManyAttempts = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed attempts",
	}

	ErrTokenExpired = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTokenExpired,
		Description: "the token has expired",
	}

	ErrTokenRevoked = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeTokenRevoked,
		Description: "the token has been revoked",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid, expired or revoked",
	}

	ErrElevationRequired = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeElevationRequired,
		Description: "step-up verification required",
	}

	ErrTwoFactorEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTwoFactorEnabled,
		Description: "two-factor authentication is already enabled",
	}

	ErrTwoFactorNotEnabled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeTwoFactorNotEnabled,
		Description: "two-factor authentication is not enabled",
	}

	ErrNoPendingEnrollment = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeNoPendingEnrollment,
		Description: "no two-factor enrollment in progress",
	}

	ErrMalformedSecret = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeMalformedSecret,
		Description: "the shared secret is not valid base32",
	}

	ErrUsernameTaken = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeUsernameTaken,
		Description: "that username is already taken",
	}

	ErrWeakPassword = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeWeakPassword,
		Description: "the password does not meet the minimum length",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrMethodNotAllowed = &APIError{
		StatusCode:  http.StatusMethodNotAllowed,
		Code:        ErrorCodeInvalidRequest,
		Description: "method not allowed",
	}

	ErrInvalidJSONBody = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "invalid JSON body",
	}
)

// NewAPIError creates a custom APIError while keeping the standard shape.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// TwoFactorRequiredError is returned when the password was correct but the
// account needs a second factor. It carries the challenge token the client
// must redeem. Sent as 409 Conflict: the request was valid but conflicts
// with the account's two-factor state.
type TwoFactorRequiredError struct {
	// ChallengeToken is the token to present when submitting the code
	ChallengeToken string `json:"challenge_token"`

	// Method names the expected second factor (currently always "totp")
	Method string `json:"method"`
}

// Error implements the error interface.
func (e *TwoFactorRequiredError) Error() string {
	return fmt.Sprintf("two-factor required: method=%s", e.Method)
}

// WriteError writes the challenge as a 409 Conflict.
func (e *TwoFactorRequiredError) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusConflict, map[string]any{
		"error":             ErrorCodeTwoFactorRequired,
		"error_description": "a second factor is required to complete this login",
		"challenge_token":   e.ChallengeToken,
		"method":            e.Method,
	})
}

// parseErrorResponse turns a non-2xx HTTP response into a typed error.
// Returns nil for 2xx responses.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Two-factor challenge (409 Conflict with a challenge token).
	if resp.StatusCode == http.StatusConflict {
		var challengeResp struct {
			Error          string `json:"error"`
			ChallengeToken string `json:"challenge_token"`
			Method         string `json:"method"`
		}
		if err := json.Unmarshal(body, &challengeResp); err == nil {
			if challengeResp.Error == ErrorCodeTwoFactorRequired && challengeResp.ChallengeToken != "" {
				return &TwoFactorRequiredError{
					ChallengeToken: challengeResp.ChallengeToken,
					Method:         challengeResp.Method,
				}
			}
		}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("unexpected response: %s", resp.Status),
	}
}

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}
