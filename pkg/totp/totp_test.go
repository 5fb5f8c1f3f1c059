package totp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Known secret with a known code at a fixed instant. Any independent TOTP
// implementation (SHA-1, 30s, 6 digits) must reproduce these values.
const (
	goldenSecret = "JBSWY3DPEHPK3PXP"
	goldenMillis = int64(1700000000000)
	goldenCode   = "324550"
)

func goldenTime() time.Time {
	return time.UnixMilli(goldenMillis)
}

func TestGenerateGoldenVector(t *testing.T) {
	t.Parallel()

	require.Equal(t, goldenCode, Generate(goldenSecret, goldenTime()))
}

func TestGenerateVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	secrets := []string{
		"JBSWY3DPEHPK3PXP",
		"jbswy3dpehpk3pxp", // lowercase input
		"GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ",
	}
	times := []time.Time{
		goldenTime(),
		time.UnixMilli(0).Add(Period * time.Second), // first nonzero step
		time.Date(2031, 7, 4, 12, 0, 1, 0, time.UTC),
	}

	for _, secret := range secrets {
		for _, at := range times {
			code := Generate(secret, at)
			require.Len(t, code, Digits)
			require.True(t, Verify(secret, code, at),
				"generate/verify mismatch for %q at %v", secret, at)
		}
	}
}

func TestVerifySkewTolerance(t *testing.T) {
	t.Parallel()

	at := goldenTime()
	code := Generate(goldenSecret, at)

	require.True(t, Verify(goldenSecret, code, at))
	require.True(t, Verify(goldenSecret, code, at.Add(-Period*time.Second)))
	require.True(t, Verify(goldenSecret, code, at.Add(Period*time.Second)))

	require.False(t, Verify(goldenSecret, code, at.Add(2*Period*time.Second)))
	require.False(t, Verify(goldenSecret, code, at.Add(-2*Period*time.Second)))
	require.False(t, Verify(goldenSecret, code, at.Add(10*Period*time.Second)))
}

func TestNormalizePadsUnpaddedSecret(t *testing.T) {
	t.Parallel()

	// 10 chars pads to 16.
	require.Equal(t, "JBSWY3DPEH======", Normalize("jbswy3dpeh"))
	// Already aligned secrets are untouched.
	require.Equal(t, goldenSecret, Normalize(goldenSecret))
	// Stray padding is re-derived, not accumulated.
	require.Equal(t, "JBSWY3DPEH======", Normalize("JBSWY3DPEH=="))
}

func TestGenerateUnpaddedSecret(t *testing.T) {
	t.Parallel()

	code := Generate("JBSWY3DPEH", goldenTime())
	require.Equal(t, "243416", code)
	require.True(t, Verify("JBSWY3DPEH", code, goldenTime()))
}

func TestMalformedSecretFailsClosed(t *testing.T) {
	t.Parallel()

	for _, secret := range []string{"", "not base32!!", "189=abc"} {
		require.Equal(t, Sentinel, Generate(secret, goldenTime()))
		require.False(t, Verify(secret, "123456", goldenTime()))
	}
}

func TestVerifyRejectsWrongLengthCodes(t *testing.T) {
	t.Parallel()

	require.False(t, Verify(goldenSecret, "", goldenTime()))
	require.False(t, Verify(goldenSecret, "12345", goldenTime()))
	require.False(t, Verify(goldenSecret, "1234567", goldenTime()))
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	require.Equal(t, 10, Remaining(goldenTime())) // 1700000000 % 30 == 20
	require.Equal(t, Period, Remaining(time.Unix(0, 0)))
	require.Equal(t, 1, Remaining(time.Unix(29, 0)))
}

func TestKeyURIRoundTrip(t *testing.T) {
	t.Parallel()

	uri := KeyURI("Anchor", "admin", goldenSecret)
	require.Contains(t, uri, "otpauth://totp/")
	require.Contains(t, uri, "issuer=Anchor")

	acct, err := ParseURI(uri)
	require.NoError(t, err)
	require.Equal(t, "Anchor", acct.Issuer)
	require.Equal(t, "admin", acct.Username)
	require.Equal(t, goldenSecret, acct.Secret)
}

func TestParseURIRejectsGarbage(t *testing.T) {
	t.Parallel()

	cases := []string{
		"https://example.com/totp?secret=JBSWY3DPEHPK3PXP",
		"otpauth://hotp/Anchor:admin?secret=JBSWY3DPEHPK3PXP",
		"otpauth://totp/Anchor:admin",                    // no secret
		"otpauth://totp/Anchor:admin?secret=notbase32!!", // bad secret
	}
	for _, raw := range cases {
		_, err := ParseURI(raw)
		require.Error(t, err, "expected failure for %q", raw)
	}
}

func TestParseURILabelWithoutIssuerPrefix(t *testing.T) {
	t.Parallel()

	acct, err := ParseURI("otpauth://totp/admin?secret=JBSWY3DPEHPK3PXP&issuer=Anchor")
	require.NoError(t, err)
	require.Equal(t, "admin", acct.Username)
	require.Equal(t, "Anchor", acct.Issuer)
}
