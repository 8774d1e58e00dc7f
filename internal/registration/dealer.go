// Package registration registers a CA certificate with the device-management
// platform and stores the generated certificate bundle.
package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/pki"
	"github.com/wolfeidau/jitr/internal/platform"
	"github.com/wolfeidau/jitr/internal/schema"
)

const bundleObjectName = "ca-certificate.json"

// Bucket is where certificate bundles are stored.
type Bucket struct {
	Name   string
	Prefix string
}

// Props configures a registration Dealer. VerifierName must already be checked
// against the allow-list.
type Props struct {
	CsrSubjects  pki.Subjects
	VerifierName string
	Bucket       Bucket

	Registrar platform.CertificateAuthorityRegistrar
	Store     platform.ObjectStore
	Generator pki.Generator
}

// Cargo is the result of a successful registration.
type Cargo struct {
	CertificateID string `json:"certificateId"`
}

// WorkTable is the state handed from one step to the next.
type WorkTable struct {
	CsrSubjects    pki.Subjects
	VerifierName   string
	Certificates   pki.Bundle
	CertificateID  string
	CertificateArn string
}

// bundleDocument is the stored form of a registered CA.
type bundleDocument struct {
	pki.Bundle
	CertificateID  string `json:"certificateId"`
	CertificateArn string `json:"certificateArn"`
}

type step struct {
	name string
	run  func(ctx context.Context, wt WorkTable) (WorkTable, error)
}

var _ dealer.Dealer[Cargo] = (*Dealer)(nil)

// Dealer runs the CA registration pipeline.
type Dealer struct {
	props Props
}

// New creates a registration Dealer.
func New(props Props) *Dealer {
	if props.Generator == nil {
		props.Generator = pki.NewGenerator()
	}
	return &Dealer{props: props}
}

// Deal builds the CSR subjects, registers the CA and stores the bundle, in that order.
func (d *Dealer) Deal(ctx context.Context) (Cargo, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("pipeline", "registration").
		Str("verifier_name", d.props.VerifierName).
		Logger()

	steps := []step{
		{"buildCsrSubjects", d.buildCsrSubjects},
		{"registerCa", d.registerCA},
		{"saveCertificates", d.saveCertificates},
	}

	wt := WorkTable{
		CsrSubjects:  d.props.CsrSubjects,
		VerifierName: d.props.VerifierName,
	}

	for _, s := range steps {
		next, err := s.run(ctx, wt)
		if err != nil {
			logger.Error().Err(err).Str("step", s.name).Msg("registration step failed")
			return Cargo{}, err
		}
		wt = next
		logger.Debug().Str("step", s.name).Str("certificate_id", wt.CertificateID).Msg("registration step completed")
	}

	logger.Info().Str("certificate_id", wt.CertificateID).Msg("CA registered")

	return Cargo{CertificateID: wt.CertificateID}, nil
}

// buildCsrSubjects replaces the common name with a platform issued registration code.
func (d *Dealer) buildCsrSubjects(ctx context.Context, wt WorkTable) (WorkTable, error) {
	code, err := d.props.Registrar.GetRegistrationCode(ctx)
	if err != nil {
		return wt, dealer.Processing("get registration code", err)
	}

	if err := schema.Check(schema.RegistrationCode{RegistrationCode: code}); err != nil {
		return wt, dealer.InformationNotFound("registration code missing", err)
	}

	wt.CsrSubjects.CommonName = code

	return wt, nil
}

func (d *Dealer) registerCA(ctx context.Context, wt WorkTable) (WorkTable, error) {
	bundle, err := d.props.Generator.Generate(wt.CsrSubjects)
	if err != nil {
		return wt, dealer.Processing("generate certificates", err)
	}

	req := platform.CARegistrationRequest{
		CACertificate:           bundle.CA.Certificate,
		VerificationCertificate: bundle.Verification.Certificate,
		AllowAutoRegistration:   true,
		SetAsActive:             true,
	}

	// no tag means devices under this CA are never verified
	if wt.VerifierName != "" {
		req.Tags = []platform.Tag{{Key: aws.String(platform.VerifierTagKey), Value: aws.String(wt.VerifierName)}}
	}

	reg, err := d.props.Registrar.RegisterCACertificate(ctx, req)
	if err != nil {
		return wt, dealer.Processing("register CA certificate", err)
	}

	checked := schema.CARegistration{CertificateID: reg.CertificateID, CertificateArn: reg.CertificateArn}
	if err := schema.Check(checked); err != nil {
		return wt, dealer.InformationNotFound("required registration information missing", err)
	}

	wt.Certificates = bundle
	wt.CertificateID = checked.CertificateID
	wt.CertificateArn = checked.CertificateArn

	return wt, nil
}

func (d *Dealer) saveCertificates(ctx context.Context, wt WorkTable) (WorkTable, error) {
	if wt.CertificateID == "" {
		return wt, dealer.InformationNotFound("certificate identifier missing, bundle not stored", nil)
	}

	body, err := json.Marshal(bundleDocument{
		Bundle:         wt.Certificates,
		CertificateID:  wt.CertificateID,
		CertificateArn: wt.CertificateArn,
	})
	if err != nil {
		return wt, dealer.Processing("encode certificate bundle", err)
	}

	if err := d.props.Store.PutObject(ctx, d.props.Bucket.Name, BundleKey(d.props.Bucket.Prefix, wt.CertificateID), body); err != nil {
		return wt, dealer.Processing(fmt.Sprintf("store certificate bundle in %s", d.props.Bucket.Name), err)
	}

	return wt, nil
}

// BundleKey is the object key of the bundle for a CA.
func BundleKey(prefix, certificateID string) string {
	return path.Join(prefix, certificateID, bundleObjectName)
}
