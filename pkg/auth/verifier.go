package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier checks a username/password pair against some account
// database
type PasswordVerifier interface {
	Verify(username, password string) bool
}

// VerifierFunc adapts a function to PasswordVerifier
type VerifierFunc func(username, password string) bool

// Verify calls f
func (f VerifierFunc) Verify(username, password string) bool {
	return f(username, password)
}

// StoreVerifier checks passwords against the bcrypt hashes written by
// CreateUser
type StoreVerifier struct {
	store *CredentialStore
}

// NewStoreVerifier returns a verifier backed by store
func NewStoreVerifier(store *CredentialStore) *StoreVerifier {
	return &StoreVerifier{store: store}
}

// Verify compares password with the stored hash for username
func (v *StoreVerifier) Verify(username, password string) bool {
	cred, ok := v.store.Credential(username)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(cred.Password), []byte(password)) == nil
}

// Backend names accepted by NewVerifier
const (
	BackendStore = "store"
	BackendPAM   = "pam"
)

// NewVerifier builds the verifier selected by backend
func NewVerifier(backend string, store *CredentialStore) (PasswordVerifier, error) {
	switch backend {
	case "", BackendStore:
		return NewStoreVerifier(store), nil
	case BackendPAM:
		return NewPAMVerifier("pcsd")
	default:
		return nil, fmt.Errorf("unknown auth backend %q", backend)
	}
}
