package domain

// TwoFactorEnrollResponse carries a freshly started enrollment back to the
// client so the secret can be loaded into an authenticator app.
type TwoFactorEnrollResponse struct {
	Secret  string `json:"secret"`  // base32 encoded secret
	URI     string `json:"uri"`     // otpauth:// URL for QR code generation
	Issuer  string `json:"issuer"`  // service name
	Account string `json:"account"` // account label, typically the username
}

// TwoFactorStatus describes the account's current two-factor state.
type TwoFactorStatus struct {
	Enabled      bool   `json:"enabled"`
	PendingSetup bool   `json:"pending_setup"`
	EnabledAt    string `json:"enabled_at,omitempty"` // RFC 3339, empty when disabled
}
