// Package platform describes the external capabilities the onboarding
// pipelines depend on: the device-management platform, object storage and
// function invocation.
package platform

import (
	"context"
	"time"
)

// VerifierTagKey is the CA tag carrying the name of the verifier that judges
// devices signed by that CA.
const VerifierTagKey = "verifierName"

// CertificateStatus is the lifecycle state of a certificate on the platform.
type CertificateStatus string

const (
	CertificateStatusActive             CertificateStatus = "ACTIVE"
	CertificateStatusInactive           CertificateStatus = "INACTIVE"
	CertificateStatusPendingActivation  CertificateStatus = "PENDING_ACTIVATION"
	CertificateStatusRevoked            CertificateStatus = "REVOKED"
	CertificateStatusRegisterInactive   CertificateStatus = "REGISTER_INACTIVE"
	CertificateStatusPendingTransfer    CertificateStatus = "PENDING_TRANSFER"
	CertificateStatusRegisterActivating CertificateStatus = "REGISTER_ACTIVATING"
)

// Tag is a key value pair attached to a platform resource. Either side may be
// absent in a platform response.
type Tag struct {
	Key   *string `json:"Key,omitempty"`
	Value *string `json:"Value,omitempty"`
}

// Validity is the validity window of a certificate.
type Validity struct {
	NotBefore *time.Time `json:"notBefore,omitempty"`
	NotAfter  *time.Time `json:"notAfter,omitempty"`
}

// CertificateDescription describes a device certificate. It is forwarded
// verbatim to verifiers, so the JSON names follow the platform's wire format.
type CertificateDescription struct {
	CertificateArn   string            `json:"certificateArn,omitempty"`
	CertificateID    string            `json:"certificateId,omitempty"`
	CACertificateID  string            `json:"caCertificateId,omitempty"`
	Status           CertificateStatus `json:"status,omitempty"`
	CertificatePem   string            `json:"certificatePem,omitempty"`
	OwnedBy          string            `json:"ownedBy,omitempty"`
	PreviousOwnedBy  string            `json:"previousOwnedBy,omitempty"`
	CreationDate     *time.Time        `json:"creationDate,omitempty"`
	LastModifiedDate *time.Time        `json:"lastModifiedDate,omitempty"`
	CustomerVersion  int32             `json:"customerVersion,omitempty"`
	GenerationID     string            `json:"generationId,omitempty"`
	CertificateMode  string            `json:"certificateMode,omitempty"`
	Validity         *Validity         `json:"validity,omitempty"`
}

// CACertificateDescription describes a registered CA certificate.
type CACertificateDescription struct {
	CertificateArn         string            `json:"certificateArn,omitempty"`
	CertificateID          string            `json:"certificateId,omitempty"`
	Status                 CertificateStatus `json:"status,omitempty"`
	CertificatePem         string            `json:"certificatePem,omitempty"`
	OwnedBy                string            `json:"ownedBy,omitempty"`
	AutoRegistrationStatus string            `json:"autoRegistrationStatus,omitempty"`
	CreationDate           *time.Time        `json:"creationDate,omitempty"`
	CustomerVersion        int32             `json:"customerVersion,omitempty"`
	GenerationID           string            `json:"generationId,omitempty"`
	CertificateMode        string            `json:"certificateMode,omitempty"`
	Validity               *Validity         `json:"validity,omitempty"`
}

// CARegistrationRequest submits a CA certificate and its proof of possession.
type CARegistrationRequest struct {
	CACertificate           string
	VerificationCertificate string
	AllowAutoRegistration   bool
	SetAsActive             bool
	Tags                    []Tag
}

// CARegistration is the identity the platform assigned to a registered CA.
type CARegistration struct {
	CertificateID  string
	CertificateArn string
}

// Thing is a device identity record.
type Thing struct {
	ThingName string
	ThingArn  string
}

// Policy is a named permission document.
type Policy struct {
	PolicyName string
	PolicyArn  string
}

// CertificateAuthorityRegistrar registers CA certificates.
type CertificateAuthorityRegistrar interface {
	GetRegistrationCode(ctx context.Context) (string, error)
	RegisterCACertificate(ctx context.Context, req CARegistrationRequest) (CARegistration, error)
}

// DeviceRegistry describes certificates and provisions device identities.
// A nil description means the platform returned none.
type DeviceRegistry interface {
	DescribeCertificate(ctx context.Context, certificateID string) (*CertificateDescription, error)
	DescribeCACertificate(ctx context.Context, certificateID string) (*CACertificateDescription, error)
	ListTags(ctx context.Context, resourceArn string) ([]Tag, error)
	CreateThing(ctx context.Context, thingName string, attributes map[string]string) (Thing, error)
	CreatePolicy(ctx context.Context, policyName, document string) (Policy, error)
	AttachPolicy(ctx context.Context, policyName, target string) error
	AttachThingPrincipal(ctx context.Context, thingName, principal string) error
	UpdateCertificateStatus(ctx context.Context, certificateID string, status CertificateStatus) error
}

// ObjectStore persists objects under a bucket and key.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}

// Invoker calls a named function with a JSON payload. A nil result means the
// function produced no payload.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}
