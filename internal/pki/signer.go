package pki

import (
	"crypto/x509"
)

// CASigner signs certificate templates on behalf of a CA.
type CASigner interface {
	// SignCertificate signs a fully populated template and returns the DER-encoded certificate.
	// The template's PublicKey field must hold the subject's public key.
	SignCertificate(template *x509.Certificate) ([]byte, error)

	// GetCACertificate returns the CA certificate used as the issuer.
	GetCACertificate() (*x509.Certificate, error)
}
