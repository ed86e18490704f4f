package auth

import (
	"errors"
	"time"

	"github.com/cuemby/pcsd/pkg/storage"
	"github.com/cuemby/pcsd/pkg/types"
)

// record is one entry of pcs_users.conf. Token records carry client and
// creation_date; bootstrap credential records carry password.
type record struct {
	Username  string     `json:"username"`
	Token     string     `json:"token"`
	Client    string     `json:"client,omitempty"`
	CreatedAt *time.Time `json:"creation_date,omitempty"`
	Password  string     `json:"password,omitempty"`
}

func (r record) isCredential() bool {
	return r.Password != ""
}

// CredentialStore persists tokens and bootstrap user credentials in a single
// flat JSON file. Reads never fail: a missing or corrupt file reads as empty.
type CredentialStore struct {
	file *storage.JSONFile[[]record]
}

// NewCredentialStore returns a store backed by path
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{file: storage.NewJSONFile[[]record](path)}
}

// Path returns the backing file location
func (s *CredentialStore) Path() string {
	return s.file.Path()
}

// Healthy reports whether the backing file is absent or parses cleanly
func (s *CredentialStore) Healthy() error {
	_, err := s.file.Load()
	if errors.Is(err, storage.ErrNotExist) {
		return nil
	}
	return err
}

// Tokens returns every token record, including the tokens of credential records
func (s *CredentialStore) Tokens() []types.Token {
	recs := s.file.LoadOrEmpty()
	tokens := make([]types.Token, 0, len(recs))
	for _, r := range recs {
		t := types.Token{Username: r.Username, Token: r.Token, Client: r.Client}
		if r.CreatedAt != nil {
			t.CreatedAt = *r.CreatedAt
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// HasToken reports whether token matches any stored record
func (s *CredentialStore) HasToken(token string) bool {
	_, ok := s.lookupToken(token)
	return ok
}

func (s *CredentialStore) lookupToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for _, r := range s.file.LoadOrEmpty() {
		if r.Token == token {
			return r.Username, true
		}
	}
	return "", false
}

// AppendToken adds a token record; existing records are kept
func (s *CredentialStore) AppendToken(t types.Token) error {
	created := t.CreatedAt
	return s.file.Update(func(recs []record) ([]record, error) {
		return append(recs, record{
			Username:  t.Username,
			Token:     t.Token,
			Client:    t.Client,
			CreatedAt: &created,
		}), nil
	})
}

// PutCredential stores a credential record, replacing any previous
// credential record for the same username. Token records are untouched.
func (s *CredentialStore) PutCredential(c types.UserCredential) error {
	return s.file.Update(func(recs []record) ([]record, error) {
		kept := recs[:0:0]
		for _, r := range recs {
			if r.isCredential() && r.Username == c.Username {
				continue
			}
			kept = append(kept, r)
		}
		return append(kept, record{
			Username: c.Username,
			Password: c.Password,
			Token:    c.Token,
		}), nil
	})
}

// Credential returns the credential record for username
func (s *CredentialStore) Credential(username string) (types.UserCredential, bool) {
	for _, r := range s.file.LoadOrEmpty() {
		if r.isCredential() && r.Username == username {
			return types.UserCredential{Username: r.Username, Password: r.Password, Token: r.Token}, true
		}
	}
	return types.UserCredential{}, false
}
