package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SuperUser is the only account allowed to log in
const SuperUser = "hacluster"

// ErrAuthenticationFailed is returned when credentials are rejected
var ErrAuthenticationFailed = errors.New("authentication failed")

// Authenticator validates credentials and issues bearer tokens.
// Tokens never expire and are never revoked; every issued token stays valid
// until the store is rewritten without it.
type Authenticator struct {
	store    *CredentialStore
	verifier PasswordVerifier
	now      func() time.Time
}

// NewAuthenticator creates an authenticator over store that checks passwords
// with verifier
func NewAuthenticator(store *CredentialStore, verifier PasswordVerifier) *Authenticator {
	return &Authenticator{
		store:    store,
		verifier: verifier,
		now:      time.Now,
	}
}

// Store returns the underlying credential store
func (a *Authenticator) Store() *CredentialStore {
	return a.store
}

// Authenticate checks username and password. Only SuperUser is ever
// accepted; the verifier is not consulted for any other account.
func (a *Authenticator) Authenticate(username, password string) bool {
	if username != SuperUser {
		metrics.AuthFailuresTotal.WithLabelValues("user").Inc()
		return false
	}
	if a.verifier == nil || !a.verifier.Verify(username, password) {
		metrics.AuthFailuresTotal.WithLabelValues("password").Inc()
		return false
	}
	return true
}

// IssueToken generates and persists a new token for username
func (a *Authenticator) IssueToken(username, clientAddr string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := id.String()

	err = a.store.AppendToken(types.Token{
		Username:  username,
		Token:     token,
		Client:    clientAddr,
		CreatedAt: a.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist token: %w", err)
	}

	metrics.TokensIssuedTotal.Inc()
	logger := log.WithComponent("auth")
	logger.Info().Str("user", username).Str("client", clientAddr).Msg("token issued")
	return token, nil
}

// Login authenticates and, on success, issues a token for the caller
func (a *Authenticator) Login(username, password, clientAddr string) (string, error) {
	if !a.Authenticate(username, password) {
		return "", ErrAuthenticationFailed
	}
	return a.IssueToken(username, clientAddr)
}

// ValidateToken reports whether token matches a stored record
func (a *Authenticator) ValidateToken(token string) bool {
	return a.store.HasToken(token)
}

// TokenUser returns the username a token was issued to
func (a *Authenticator) TokenUser(token string) (string, bool) {
	return a.store.lookupToken(token)
}

// CreateUser writes the bootstrap credential record for username and returns
// its token. An existing credential for the same username is replaced.
func (a *Authenticator) CreateUser(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	cred := types.UserCredential{
		Username: username,
		Password: string(hash),
		Token:    id.String(),
	}
	if err := a.store.PutCredential(cred); err != nil {
		return "", fmt.Errorf("failed to persist user: %w", err)
	}
	return cred.Token, nil
}

// IsLoggedIn reports whether the caller presented a valid token or already
// holds a browser session. Neither path expires server-side.
func (a *Authenticator) IsLoggedIn(session *Session, token string) bool {
	if token != "" && a.ValidateToken(token) {
		return true
	}
	return session != nil && session.Username != ""
}

// IsAuthorized always returns true. There is no role model yet; every
// logged-in caller may run every command.
func (a *Authenticator) IsAuthorized(session *Session) bool {
	return true
}
