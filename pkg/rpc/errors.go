package rpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/cuemby/pcsd/pkg/types"
)

// Kind classifies why a node call failed
type Kind int

const (
	// KindConnectionRefused means nothing listens on the node's port
	KindConnectionRefused Kind = iota + 1
	// KindTimeout means the call did not finish within its deadline
	KindTimeout
	// KindTLS means the TLS handshake failed
	KindTLS
	// KindHTTP means the node answered with a non-2xx status
	KindHTTP
	// KindUnreachable covers any other transport failure (DNS, routing, reset)
	KindUnreachable
)

// String returns the reason used in aggregate error markers and metric labels
func (k Kind) String() string {
	switch k {
	case KindConnectionRefused:
		return types.ReasonConnectionRefused
	case KindTimeout:
		return types.ReasonTimeout
	case KindTLS:
		return types.ReasonTLS
	case KindHTTP:
		return types.ReasonHTTP
	default:
		return types.ReasonUnreachable
	}
}

// ErrBodyTooLarge is returned when a node response exceeds the body limit
var ErrBodyTooLarge = errors.New("response body too large")

// Error is a failed call to one node
type Error struct {
	Node    string
	Command string
	Kind    Kind
	// Status is set for KindHTTP
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("node %s: %s: HTTP %d", e.Node, e.Command, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("node %s: %s: %s: %v", e.Node, e.Command, e.Kind, e.Err)
	}
	return fmt.Sprintf("node %s: %s: %s", e.Node, e.Command, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err
func KindOf(err error) (Kind, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind, true
	}
	return 0, false
}

// IsUnreachable reports whether err means the node could not be talked to at
// all, as opposed to a node that answered and rejected the request
func IsUnreachable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind != KindHTTP
}

// classify maps a transport error from http.Client.Do to a Kind
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	if isTLSError(err) {
		return KindTLS
	}
	return KindUnreachable
}

func isTLSError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		invalidCert x509.CertificateInvalidError
		hostErr     x509.HostnameError
	)
	switch {
	case errors.Is(err, http.ErrSchemeMismatch),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &invalidCert),
		errors.As(err, &hostErr):
		return true
	}
	return strings.Contains(err.Error(), "tls:")
}
