package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

// SessionCookie is the name of the browser session cookie
const SessionCookie = "pcsd.session"

// Session is the state carried in a signed browser cookie
type Session struct {
	Username  string    `json:"username"`
	LoginTime time.Time `json:"login_time"`
}

// SessionManager signs and encrypts session cookies
type SessionManager struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewSessionManager creates a manager from a secret. The signing and the
// encryption key are both derived from it. An empty secret yields random
// keys, which invalidates existing sessions on restart.
func NewSessionManager(secret []byte, secure bool) (*SessionManager, error) {
	var hashKey, blockKey []byte
	if len(secret) == 0 {
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil || blockKey == nil {
			return nil, fmt.Errorf("failed to generate session keys")
		}
	} else {
		var err error
		if hashKey, err = deriveKey(secret, "pcsd session signing", 64); err != nil {
			return nil, err
		}
		if blockKey, err = deriveKey(secret, "pcsd session encryption", 32); err != nil {
			return nil, err
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(0)
	return &SessionManager{codec: codec, secure: secure}, nil
}

func deriveKey(secret []byte, purpose string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return key, nil
}

// Load returns the session carried by r, or nil when there is none or the
// cookie fails verification
func (m *SessionManager) Load(r *http.Request) *Session {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	var s Session
	if err := m.codec.Decode(SessionCookie, c.Value, &s); err != nil {
		return nil
	}
	return &s
}

// Save writes s as the session cookie
func (m *SessionManager) Save(w http.ResponseWriter, s *Session) error {
	value, err := m.codec.Encode(SessionCookie, s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}
