/*
Package security manages the TLS certificate pcsd serves on port 2224.

Each node generates its own self-signed RSA certificate on first start and
stores it as pcsd.crt and pcsd.key in the certificate directory. Peers never
verify it: trust between nodes comes from tokens, the certificate only
encrypts the channel. EnsureNodeCert reuses the stored certificate until it
is within 30 days of expiry, then replaces it.

	cert, err := security.EnsureNodeCert(cfg.CertDir, cfg.NodeName)
	if err != nil {
		return err
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{*cert}}
*/
package security
