package auth

import (
	"bytes"
	"encoding/base64"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, verifier PasswordVerifier) *Authenticator {
	t.Helper()
	store := NewCredentialStore(filepath.Join(t.TempDir(), "pcs_users.conf"))
	return NewAuthenticator(store, verifier)
}

func acceptAll() PasswordVerifier {
	return VerifierFunc(func(string, string) bool { return true })
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name     string
		username string
		verifier PasswordVerifier
		want     bool
	}{
		{"superuser with valid password", SuperUser, acceptAll(), true},
		{"superuser with bad password", SuperUser, VerifierFunc(func(string, string) bool { return false }), false},
		{"other user even if verifier accepts", "root", acceptAll(), false},
		{"empty user", "", acceptAll(), false},
		{"no verifier", SuperUser, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthenticator(t, tt.verifier)
			assert.Equal(t, tt.want, a.Authenticate(tt.username, "secret"))
		})
	}
}

func TestAuthenticateSkipsVerifierForOtherUsers(t *testing.T) {
	called := false
	a := newTestAuthenticator(t, VerifierFunc(func(string, string) bool {
		called = true
		return true
	}))

	assert.False(t, a.Authenticate("admin", "secret"))
	assert.False(t, called)
}

func TestIssueTokenValidates(t *testing.T) {
	a := newTestAuthenticator(t, acceptAll())

	first, err := a.IssueToken(SuperUser, "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.True(t, a.ValidateToken(first))

	second, err := a.IssueToken(SuperUser, "10.0.0.2")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Earlier tokens stay valid after further issues
	assert.True(t, a.ValidateToken(first))
	assert.True(t, a.ValidateToken(second))

	tokens := a.Store().Tokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, "10.0.0.1", tokens[0].Client)
	assert.Equal(t, SuperUser, tokens[1].Username)
	assert.False(t, tokens[1].CreatedAt.IsZero())
}

func TestValidateTokenRejectsUnknown(t *testing.T) {
	a := newTestAuthenticator(t, acceptAll())

	_, err := a.IssueToken(SuperUser, "")
	require.NoError(t, err)

	assert.False(t, a.ValidateToken(""))
	assert.False(t, a.ValidateToken("not-a-token"))
}

func TestTokenPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcs_users.conf")
	a := NewAuthenticator(NewCredentialStore(path), acceptAll())

	token, err := a.Login(SuperUser, "secret", "10.0.0.9")
	require.NoError(t, err)

	b := NewAuthenticator(NewCredentialStore(path), nil)
	user, ok := b.TokenUser(token)
	assert.True(t, ok)
	assert.Equal(t, SuperUser, user)
}

func TestLoginFailureIssuesNothing(t *testing.T) {
	a := newTestAuthenticator(t, acceptAll())

	token, err := a.Login("nobody", "secret", "10.0.0.1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Empty(t, token)
	assert.Empty(t, a.Store().Tokens())
}

func TestCorruptStoreReadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcs_users.conf")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	a := NewAuthenticator(NewCredentialStore(path), acceptAll())
	assert.False(t, a.ValidateToken("anything"))
	assert.Error(t, a.Store().Healthy())
}

func TestCreateUserWithStoreVerifier(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "pcs_users.conf"))
	a := NewAuthenticator(store, NewStoreVerifier(store))

	token, err := a.CreateUser(SuperUser, "first")
	require.NoError(t, err)
	assert.True(t, a.ValidateToken(token))
	assert.True(t, a.Authenticate(SuperUser, "first"))
	assert.False(t, a.Authenticate(SuperUser, "wrong"))

	cred, ok := store.Credential(SuperUser)
	require.True(t, ok)
	assert.NotEqual(t, "first", cred.Password)

	// Overwriting replaces the credential but keeps issued tokens
	issued, err := a.IssueToken(SuperUser, "10.0.0.1")
	require.NoError(t, err)

	_, err = a.CreateUser(SuperUser, "second")
	require.NoError(t, err)
	assert.False(t, a.Authenticate(SuperUser, "first"))
	assert.True(t, a.Authenticate(SuperUser, "second"))
	assert.True(t, a.ValidateToken(issued))
	assert.False(t, a.ValidateToken(token))
	assert.Len(t, store.Tokens(), 2)
}

func TestCreateUserRequiresPassword(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	_, err := a.CreateUser(SuperUser, "")
	assert.Error(t, err)
}

func TestIsLoggedIn(t *testing.T) {
	a := newTestAuthenticator(t, acceptAll())
	token, err := a.IssueToken(SuperUser, "")
	require.NoError(t, err)

	assert.True(t, a.IsLoggedIn(nil, token))
	assert.True(t, a.IsLoggedIn(&Session{Username: SuperUser, LoginTime: time.Now()}, ""))
	assert.False(t, a.IsLoggedIn(nil, "bogus"))
	assert.False(t, a.IsLoggedIn(&Session{}, ""))
	assert.True(t, a.IsAuthorized(nil))
}

func TestNewVerifier(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "pcs_users.conf"))

	v, err := NewVerifier("", store)
	require.NoError(t, err)
	assert.IsType(t, &StoreVerifier{}, v)

	v, err = NewVerifier(BackendStore, store)
	require.NoError(t, err)
	assert.IsType(t, &StoreVerifier{}, v)

	_, err = NewVerifier("ldap", store)
	assert.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	mgr, err := NewSessionManager(nil, false)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	login := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, mgr.Save(w, &Session{Username: SuperUser, LoginTime: login}))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	r := httptest.NewRequest("GET", "/manage/clusters", nil)
	r.AddCookie(cookies[0])
	s := mgr.Load(r)
	require.NotNil(t, s)
	assert.Equal(t, SuperUser, s.Username)
	assert.True(t, login.Equal(s.LoginTime))
}

func TestSessionRejectsForeignCookie(t *testing.T) {
	a, err := NewSessionManager(nil, false)
	require.NoError(t, err)
	b, err := NewSessionManager(nil, false)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, a.Save(w, &Session{Username: SuperUser}))

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(w.Result().Cookies()[0])
	assert.Nil(t, b.Load(r))

	assert.Nil(t, a.Load(httptest.NewRequest("GET", "/", nil)))
}

func TestSessionShortSecretEncrypts(t *testing.T) {
	secret := []byte("short-secret")
	a, err := NewSessionManager(secret, false)
	require.NoError(t, err)
	b, err := NewSessionManager(secret, false)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, a.Save(w, &Session{Username: SuperUser}))
	cookie := w.Result().Cookies()[0]

	// date|value|mac, with value base64 encoded
	raw, err := base64.URLEncoding.DecodeString(cookie.Value)
	require.NoError(t, err)
	parts := bytes.SplitN(raw, []byte("|"), 3)
	require.Len(t, parts, 3)
	value, err := base64.URLEncoding.DecodeString(string(parts[1]))
	require.NoError(t, err)
	assert.NotContains(t, string(value), SuperUser)

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)
	s := b.Load(r)
	require.NotNil(t, s)
	assert.Equal(t, SuperUser, s.Username)
}

func TestSessionClear(t *testing.T) {
	mgr, err := NewSessionManager([]byte("0123456789abcdef0123456789abcdef"), true)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	mgr.Clear(w)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
}
