// Package authenticator implements the companion code generator: a small
// local vault of TOTP accounts that mirrors what a phone authenticator app
// does. Secrets live in a bbolt file keyed per account.
package authenticator

import (
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/anchorscm/anchor/pkg/idx"
	"github.com/anchorscm/anchor/pkg/totp"
)

var (
	ErrNotFound        = errors.New("authenticator: account not found")
	ErrMalformedSecret = errors.New("authenticator: secret is not valid base32")
)

var bucketAccounts = []byte("accounts")

// Account is one enrolled TOTP credential.
type Account struct {
	ID      string    `json:"id"`
	Issuer  string    `json:"issuer"`
	Label   string    `json:"label"`
	Secret  string    `json:"secret"`
	AddedAt time.Time `json:"added_at"`
}

// Code is a generated one-time code with its countdown.
type Code struct {
	Account Account

	// Value is the current 6-digit code, or the sentinel when the stored
	// secret is unusable.
	Value string

	// Remaining is how many seconds the code stays valid.
	Remaining int
}

// Vault stores enrolled accounts in a bbolt file.
type Vault struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the vault at path.
func Open(path string) (*Vault, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init vault: %w", err)
	}

	return &Vault{db: db}, nil
}

func (v *Vault) Close() error {
	return v.db.Close()
}

// Add enrolls a secret under an issuer and label. The secret is normalized
// and must decode as base32.
func (v *Vault) Add(issuer, label, secret string) (Account, error) {
	norm := totp.Normalize(secret)
	if _, err := base32.StdEncoding.DecodeString(norm); err != nil || norm == "" {
		return Account{}, ErrMalformedSecret
	}

	acct := Account{
		ID:      idx.New().String(),
		Issuer:  issuer,
		Label:   label,
		Secret:  norm,
		AddedAt: time.Now(),
	}

	err := v.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(acct)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAccounts).Put([]byte(acct.ID), raw)
	})
	if err != nil {
		return Account{}, fmt.Errorf("store account: %w", err)
	}
	return acct, nil
}

// AddFromURI enrolls an account from an otpauth://totp/ provisioning URI,
// as produced by the enrollment endpoint or scanned from a QR code.
func (v *Vault) AddFromURI(uri string) (Account, error) {
	parsed, err := totp.ParseURI(uri)
	if err != nil {
		return Account{}, err
	}
	return v.Add(parsed.Issuer, parsed.Username, parsed.Secret)
}

// List returns every enrolled account, oldest first.
func (v *Vault) List() ([]Account, error) {
	var accounts []Account
	err := v.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, raw []byte) error {
			var acct Account
			if err := json.Unmarshal(raw, &acct); err != nil {
				return err
			}
			accounts = append(accounts, acct)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AddedAt.Before(accounts[j].AddedAt)
	})
	return accounts, nil
}

// Get returns one account by id.
func (v *Vault) Get(id string) (Account, error) {
	var acct Account
	err := v.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &acct)
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Remove deletes an account from the vault.
func (v *Vault) Remove(id string) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Codes generates the current code for every enrolled account. Accounts
// with unusable secrets show the sentinel rather than being skipped, so the
// display stays aligned with List.
func (v *Vault) Codes(now time.Time) ([]Code, error) {
	accounts, err := v.List()
	if err != nil {
		return nil, err
	}

	codes := make([]Code, 0, len(accounts))
	for _, acct := range accounts {
		codes = append(codes, Code{
			Account:   acct,
			Value:     totp.Generate(acct.Secret, now),
			Remaining: totp.Remaining(now),
		})
	}
	return codes, nil
}
