package jwtx

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"sync"

	"github.com/anchorscm/anchor/pkg/cryptox"
)

// KeyManager wires signing keys, the KeySet, and the verifier together.
// Keys are ephemeral: generated at startup and held only in memory, so every
// restart invalidates outstanding access tokens. Refresh tokens survive in
// the store, which is exactly the recovery path clients already implement.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures an ephemeral KeyManager.
type KeyManagerOptions struct {
	// Issuer is the issuer claim (iss) stamped into and validated on tokens.
	Issuer string

	// NumKeys is how many signing keys to generate (default 3, max 10).
	NumKeys int
}

// NewEphemeralKeyManager generates Ed25519 signing keys in memory.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = 3
	}
	if numKeys > 10 {
		numKeys = 10
	}

	keyset := NewKeySet()
	signers := make([]Signer, 0, numKeys)

	for i := 0; i < numKeys; i++ {
		kid, err := randomKeyID()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key ID: %w", err)
		}

		pemBytes, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate key %d: %w", i+1, err)
		}
		signer, err := NewSignerEdDSA(kid, pemBytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to load key %d: %w", i+1, err)
		}

		signers = append(signers, signer)
		keyset.AddSigner(signer)
	}

	return &KeyManager{
		Verifier: NewVerifierEdDSA(keyset, opts.Issuer),
		KeySet:   keyset,
		signers:  signers,
	}, nil
}

// GetSigner returns a signer, distributing load across the available keys.
func (m *KeyManager) GetSigner() Signer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signers[mathrand.IntN(len(m.signers))]
}

func randomKeyID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
