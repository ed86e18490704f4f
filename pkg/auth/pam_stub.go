//go:build !pam

package auth

import "errors"

// NewPAMVerifier fails when pcsd was built without the pam tag
func NewPAMVerifier(service string) (PasswordVerifier, error) {
	return nil, errors.New("pcsd was built without PAM support (rebuild with -tags pam)")
}
