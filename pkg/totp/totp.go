// Package totp implements the time-based one-time password engine shared by
// the auth service (verification) and the companion authenticator app
// (code display). Both sides must agree exactly: 6 digits, SHA-1, 30 second
// steps, with a one-step skew tolerance on the verifying side.
package totp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30

	// Digits is the code length.
	Digits = 6

	// Sentinel is returned by Generate for a malformed secret. It can never
	// collide with a real code, so display layers may show it verbatim
	// without risking a valid-looking value.
	Sentinel = "------"
)

// NewSecret returns a fresh 160-bit shared secret, base32 encoded without
// padding, suitable for provisioning into authenticator apps.
func NewSecret() (string, error) {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("totp: generate secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]), nil
}

// Normalize canonicalizes a base32 secret: trims whitespace, uppercases, and
// right-pads with '=' to the nearest multiple of 8 characters. It does not
// validate that the result decodes; Generate and Verify fail closed on
// malformed input.
func Normalize(secret string) string {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.TrimRight(s, "=")
	if rem := len(s) % 8; rem != 0 {
		s += strings.Repeat("=", 8-rem)
	}
	return s
}

func validOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    Period,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate derives the 6-digit code for the secret at the given instant.
// A secret that does not decode as base32 after normalization yields the
// Sentinel value rather than an error, so callers on UI paths never have to
// branch on failure.
func Generate(secret string, at time.Time) string {
	norm := Normalize(secret)
	if norm == "" {
		return Sentinel
	}
	if _, err := base32.StdEncoding.DecodeString(norm); err != nil {
		return Sentinel
	}

	code, err := totp.GenerateCodeCustom(norm, at, totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return Sentinel
	}
	return code
}

// Verify reports whether code is valid for the secret at the given instant.
// The immediately adjacent time steps are accepted to absorb clock skew
// (one step either side, no wider). Malformed secrets fail closed.
func Verify(secret, code string, at time.Time) bool {
	norm := Normalize(secret)
	if norm == "" {
		return false
	}
	if _, err := base32.StdEncoding.DecodeString(norm); err != nil {
		return false
	}
	if len(code) != Digits {
		return false
	}

	// ValidateCustom already recomputes over the skew window, but its
	// comparison short-circuits; re-derive here so the comparison is
	// constant time per candidate step.
	for _, offset := range []time.Duration{0, -Period * time.Second, Period * time.Second} {
		candidate, err := totp.GenerateCodeCustom(norm, at.Add(offset), totp.ValidateOpts{
			Period:    Period,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// Remaining returns the seconds left in the current time step. This feeds UI
// countdowns only; verification always recomputes from wall-clock time.
func Remaining(at time.Time) int {
	return Period - int(at.Unix()%Period)
}

// KeyURI builds a provisioning URI consumable by standard authenticator apps.
func KeyURI(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", Normalize(secret))
	v.Set("issuer", issuer)
	v.Set("period", fmt.Sprintf("%d", Period))
	v.Set("digits", fmt.Sprintf("%d", Digits))
	v.Set("algorithm", "SHA1")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// Account is the result of parsing a provisioning URI.
type Account struct {
	Issuer   string
	Username string
	Secret   string
}

// ParseURI extracts the issuer, account name, and secret from an
// otpauth://totp/ provisioning URI, as scanned from an enrollment QR code.
func ParseURI(raw string) (Account, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Account{}, fmt.Errorf("totp: invalid provisioning uri: %w", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		return Account{}, fmt.Errorf("totp: not an otpauth://totp uri")
	}

	secret := Normalize(u.Query().Get("secret"))
	if secret == "" {
		return Account{}, fmt.Errorf("totp: uri has no secret")
	}
	if _, err := base32.StdEncoding.DecodeString(secret); err != nil {
		return Account{}, fmt.Errorf("totp: secret is not valid base32")
	}

	label := strings.TrimPrefix(u.Path, "/")
	acct := Account{
		Issuer: u.Query().Get("issuer"),
		Secret: secret,
	}
	if issuer, user, ok := strings.Cut(label, ":"); ok {
		acct.Username = user
		if acct.Issuer == "" {
			acct.Issuer = issuer
		}
	} else {
		acct.Username = label
	}
	return acct, nil
}
