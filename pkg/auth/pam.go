//go:build pam

package auth

import (
	"errors"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/msteinert/pam/v2"
)

// PAMVerifier checks passwords with the host PAM stack
type PAMVerifier struct {
	service string
}

// NewPAMVerifier returns a verifier using the given PAM service name
func NewPAMVerifier(service string) (PasswordVerifier, error) {
	return &PAMVerifier{service: service}, nil
}

// Verify runs a PAM authenticate + account check for username
func (v *PAMVerifier) Verify(username, password string) bool {
	t, err := pam.StartFunc(v.service, username, func(s pam.Style, msg string) (string, error) {
		switch s {
		case pam.PromptEchoOff:
			return password, nil
		case pam.PromptEchoOn:
			return username, nil
		case pam.ErrorMsg, pam.TextInfo:
			return "", nil
		}
		return "", errors.New("unrecognized PAM message style")
	})
	if err != nil {
		log.Errorf("failed to start PAM transaction", err)
		return false
	}
	defer t.End()

	if err := t.Authenticate(0); err != nil {
		return false
	}
	return t.AcctMgmt(0) == nil
}
