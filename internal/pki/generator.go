package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const defaultValidity = 10 * 365 * 24 * time.Hour

// Subjects holds the subject fields used when generating certificates. All
// fields are optional.
type Subjects struct {
	CommonName           string `json:"commonName"`
	CountryName          string `json:"countryName"`
	StateName            string `json:"stateName"`
	LocalityName         string `json:"localityName"`
	OrganizationName     string `json:"organizationName"`
	OrganizationUnitName string `json:"organizationUnitName"`
}

// Name converts the subject fields into a distinguished name, skipping empty fields.
func (s Subjects) Name() pkix.Name {
	name := pkix.Name{CommonName: s.CommonName}
	if s.CountryName != "" {
		name.Country = []string{s.CountryName}
	}
	if s.StateName != "" {
		name.Province = []string{s.StateName}
	}
	if s.LocalityName != "" {
		name.Locality = []string{s.LocalityName}
	}
	if s.OrganizationName != "" {
		name.Organization = []string{s.OrganizationName}
	}
	if s.OrganizationUnitName != "" {
		name.OrganizationalUnit = []string{s.OrganizationUnitName}
	}
	return name
}

// KeyPair is a PEM-encoded key pair.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// Certificate is a PEM-encoded certificate with its key pair.
type Certificate struct {
	Keys        KeyPair `json:"keys"`
	Certificate string  `json:"certificate"`
}

// Bundle is the CA certificate together with the verification certificate
// proving possession of the CA key.
type Bundle struct {
	CA           Certificate `json:"ca"`
	Verification Certificate `json:"verification"`
}

// Generator produces a CA bundle from subject fields.
type Generator interface {
	Generate(subjects Subjects) (Bundle, error)
}

// ECDSAGenerator generates P-256 keys, a self-signed CA certificate and a
// verification certificate whose common name is subjects.CommonName.
type ECDSAGenerator struct {
	Validity time.Duration
	Now      func() time.Time
}

// NewGenerator returns an ECDSAGenerator with a ten year validity.
func NewGenerator() *ECDSAGenerator {
	return &ECDSAGenerator{Validity: defaultValidity, Now: time.Now}
}

func (g *ECDSAGenerator) Generate(subjects Subjects) (Bundle, error) {
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	validity := g.Validity
	if validity == 0 {
		validity = defaultValidity
	}

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serialNumber, err := newSerialNumber()
	if err != nil {
		return Bundle{}, err
	}

	// the verification certificate carries the registration code, the CA does not
	caSubject := subjects.Name()
	caSubject.CommonName = caCommonName(subjects)

	caTemplate := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               caSubject,
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	var signer CASigner
	signer, err = NewKeySigner(caKey, caCert)
	if err != nil {
		return Bundle{}, err
	}

	verificationKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to generate verification key: %w", err)
	}

	serialNumber, err = newSerialNumber()
	if err != nil {
		return Bundle{}, err
	}

	verificationTemplate := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      subjects.Name(),
		NotBefore:    now,
		NotAfter:     now.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		PublicKey:    &verificationKey.PublicKey,
	}

	verificationCertDER, err := issue(signer, verificationTemplate)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to create verification certificate: %w", err)
	}

	ca, err := encodeCertificate(caCertDER, caKey)
	if err != nil {
		return Bundle{}, err
	}

	verification, err := encodeCertificate(verificationCertDER, verificationKey)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{CA: ca, Verification: verification}, nil
}

// issue signs template and checks the result chains to the signer's CA.
func issue(signer CASigner, template *x509.Certificate) ([]byte, error) {
	der, err := signer.SignCertificate(template)
	if err != nil {
		return nil, err
	}

	issuer, err := signer.GetCACertificate()
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	if err := cert.CheckSignatureFrom(issuer); err != nil {
		return nil, fmt.Errorf("issued certificate does not chain to %s: %w", issuer.Subject.CommonName, err)
	}

	return der, nil
}

func caCommonName(subjects Subjects) string {
	if subjects.OrganizationName != "" {
		return subjects.OrganizationName + " JITR CA"
	}
	return "JITR CA"
}

func newSerialNumber() (*big.Int, error) {
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serialNumber, nil
}

func encodeCertificate(der []byte, key *ecdsa.PrivateKey) (Certificate, error) {
	privateDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return Certificate{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return Certificate{}, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return Certificate{
		Keys: KeyPair{
			PublicKey:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})),
			PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateDER})),
		},
		Certificate: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}, nil
}
