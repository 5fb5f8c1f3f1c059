package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Do sends an authenticated request. The access token is attached and, when
// the server answers 401 with an expiry code, the session refreshes once and
// retries the request exactly once. Requests with a body must be created
// with a rewindable body (http.NewRequest with *bytes.Reader and friends
// set GetBody automatically).
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	token, err := s.getValidToken(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := s.send(req, token)
	if err != nil {
		return nil, err
	}
	if !retriableAuthFailure(resp) {
		return resp, nil
	}
	resp.Body.Close()

	// The token aged out between the margin check and the server's clock,
	// or the signing keys rotated under us. One refresh, one retry.
	if err := s.refresh(req.Context()); err != nil {
		return nil, err
	}

	retry, err := rewind(req)
	if err != nil {
		return nil, err
	}
	return s.send(retry, s.AccessToken())
}

// DoJSON dispatches a JSON request to path and decodes the response into
// out, with the same transparent recovery as Do. A nil out skips decoding.
func (s *Session) DoJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.url(path), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, bodyBytes)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Elevate re-verifies credentials and swaps in the elevated access token.
// The password is always required; two-factor accounts pass a TOTP code as
// well.
func (s *Session) Elevate(ctx context.Context, password, code string) error {
	var stepUp StepUpResponse
	err := s.DoJSON(ctx, http.MethodPost, "/auth/step-up",
		StepUpRequest{Password: password, Code: code}, &stepUp)
	if err != nil {
		return err
	}

	s.adopt(&TokenResponse{
		AccessToken: stepUp.AccessToken,
		TokenType:   stepUp.TokenType,
		ExpiresIn:   stepUp.ExpiresIn,
	})
	return nil
}

// DoElevatedJSON dispatches like DoJSON but, when the server demands a
// fresh elevation grant, steps up with the provided credentials and replays
// the request exactly once.
func (s *Session) DoElevatedJSON(ctx context.Context, method, path string, body, out any, password, code string) error {
	err := s.DoJSON(ctx, method, path, body, out)
	if !errorNeedsElevation(err) {
		return err
	}

	if err := s.Elevate(ctx, password, code); err != nil {
		return err
	}
	return s.DoJSON(ctx, method, path, body, out)
}

func (s *Session) send(req *http.Request, token string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// retriableAuthFailure reports whether the response is a 401 the session
// can cure with a refresh. Other 401s (revoked tokens, bad credentials)
// are surfaced to the caller.
func retriableAuthFailure(resp *http.Response) bool {
	if resp.StatusCode != http.StatusUnauthorized {
		return false
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	// Put the body back for callers that see this response.
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var body ErrorResponse
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return false
	}
	return body.Error == ErrorCodeTokenExpired || body.Error == ErrorCodeInvalidToken
}

func errorNeedsElevation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrorCodeElevationRequired || apiErr.Code == ErrorCodeElevationExpired
}

// rewind clones a request for retry, rebuilding the body from GetBody.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return retry, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	retry.Body = body
	return retry, nil
}
