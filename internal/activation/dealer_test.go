package activation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/pki"
	"github.com/wolfeidau/jitr/internal/platform"
	"github.com/wolfeidau/jitr/internal/platform/memory"
)

var provisioningCalls = []string{
	"CreateThing",
	"CreatePolicy",
	"AttachPolicy",
	"AttachThingPrincipal",
	"UpdateCertificateStatus",
}

// setup registers a CA tagged with verifierName (if any) and a device under
// it, returning the platform and the device certificate id.
func setup(t *testing.T, tags ...platform.Tag) (*memory.Platform, string) {
	t.Helper()
	ctx := context.Background()

	p := memory.New(memory.WithIDs("cert-1", "dev-1"))

	code, err := p.GetRegistrationCode(ctx)
	require.NoError(t, err)

	bundle, err := pki.NewGenerator().Generate(pki.Subjects{CommonName: code})
	require.NoError(t, err)

	_, err = p.RegisterCACertificate(ctx, platform.CARegistrationRequest{
		CACertificate:           bundle.CA.Certificate,
		VerificationCertificate: bundle.Verification.Certificate,
		AllowAutoRegistration:   true,
		SetAsActive:             true,
		Tags:                    tags,
	})
	require.NoError(t, err)

	desc, err := p.AddDeviceCertificate("cert-1", "device-pem")
	require.NoError(t, err)

	return p, desc.CertificateID
}

func verifierTag(name string) platform.Tag {
	return platform.Tag{Key: aws.String(platform.VerifierTagKey), Value: aws.String(name)}
}

func answer(payload string) memory.Function {
	return func(ctx context.Context, _ []byte) ([]byte, error) {
		if payload == "" {
			return nil, nil
		}
		return []byte(payload), nil
	}
}

func deal(p *memory.Platform, registry platform.DeviceRegistry, deviceID string) (Cargo, error) {
	return New(Props{
		DeviceCertificateID: deviceID,
		Registry:            registry,
		Invoker:             p,
	}).Deal(context.Background())
}

func TestDeal_noVerifierTag(t *testing.T) {
	p, deviceID := setup(t, platform.Tag{Key: aws.String("owner"), Value: aws.String("ops")})

	cargo, err := deal(p, p, deviceID)
	require.NoError(t, err)
	require.Equal(t, Cargo{CertificateID: "dev-1", VerifierName: ""}, cargo)

	require.NotContains(t, p.Calls(), "Invoke")
	require.Equal(t, append([]string{"GetRegistrationCode", "RegisterCACertificate", "DescribeCertificate", "DescribeCACertificate", "ListTags"}, provisioningCalls...), p.Calls())

	cert, ok := p.Certificate("dev-1")
	require.True(t, ok)
	require.Equal(t, platform.CertificateStatusActive, cert.Status)
}

func TestDeal_verified(t *testing.T) {
	p, deviceID := setup(t, verifierTag("checkDevice"))

	var received platform.CertificateDescription
	p.RegisterFunction("checkDevice", func(ctx context.Context, payload []byte) ([]byte, error) {
		if err := json.Unmarshal(payload, &received); err != nil {
			return nil, err
		}
		return []byte(`{"statusCode":200,"body":{"verified":true}}`), nil
	})

	cargo, err := deal(p, p, deviceID)
	require.NoError(t, err)
	require.Equal(t, Cargo{CertificateID: "dev-1", VerifierName: "checkDevice"}, cargo)

	calls := p.Calls()
	require.GreaterOrEqual(t, len(calls), len(provisioningCalls)+1)
	require.Equal(t, append([]string{"Invoke"}, provisioningCalls...), calls[len(calls)-len(provisioningCalls)-1:])

	require.Equal(t, "dev-1", received.CertificateID)
	require.Equal(t, "cert-1", received.CACertificateID)
	require.Equal(t, "device-pem", received.CertificatePem)

	thing, ok := p.Thing("dev-1")
	require.True(t, ok)
	require.Equal(t, map[string]string{"version": "v1"}, thing.Attributes)
	require.Equal(t, []string{"arn:aws:iot:us-east-1:123456789012:cert/dev-1"}, thing.Principals)

	doc, targets, ok := p.Policy("Policy-dev-1")
	require.True(t, ok)
	require.Equal(t, []string{"arn:aws:iot:us-east-1:123456789012:cert/dev-1"}, targets)
	require.JSONEq(t, `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["iot:Connect","iot:Publish"],"Resource":"*"}]}`, doc)
}

func TestDeal_verificationFailures(t *testing.T) {
	tests := []struct {
		name     string
		verifier memory.Function
	}{
		{name: "explicit rejection", verifier: answer(`{"body":{"verified":false}}`)},
		{name: "no payload", verifier: answer("")},
		{name: "missing body", verifier: answer(`{"verified":true}`)},
		{name: "malformed payload", verifier: answer(`<html>`)},
		{name: "verified not boolean", verifier: answer(`{"body":{"verified":1}}`)},
		{name: "invocation failure", verifier: func(ctx context.Context, _ []byte) ([]byte, error) {
			return nil, errors.New("function timed out")
		}},
		{name: "verifier not found", verifier: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, deviceID := setup(t, verifierTag("checkDevice"))
			if tt.verifier != nil {
				p.RegisterFunction("checkDevice", tt.verifier)
			}

			_, err := deal(p, p, deviceID)
			require.ErrorIs(t, err, dealer.ErrVerification)

			failure := dealer.Classify(err)
			require.Equal(t, dealer.KindVerification, failure.Kind)
			require.Equal(t, http.StatusInternalServerError, failure.Status)

			for _, op := range provisioningCalls {
				require.NotContains(t, p.Calls(), op)
			}

			cert, ok := p.Certificate("dev-1")
			require.True(t, ok)
			require.Equal(t, platform.CertificateStatusPendingActivation, cert.Status)
		})
	}
}

func TestDeal_noPayloadMatchesRejection(t *testing.T) {
	run := func(payload string) error {
		p, deviceID := setup(t, verifierTag("checkDevice"))
		p.RegisterFunction("checkDevice", answer(payload))
		_, err := deal(p, p, deviceID)
		return err
	}

	silent := dealer.Classify(run(""))
	rejected := dealer.Classify(run(`{"body":{"verified":false}}`))

	require.Equal(t, rejected.Kind, silent.Kind)
	require.Equal(t, rejected.Status, silent.Status)
}

func TestDeal_percentEncodedVerifierName(t *testing.T) {
	p, deviceID := setup(t, verifierTag("arn%3Aaws%3Alambda%3Aus-east-1%3A123456789012%3Afunction%3AcheckDevice"))
	p.RegisterFunction("arn:aws:lambda:us-east-1:123456789012:function:checkDevice", answer(`{"body":{"verified":true}}`))

	cargo, err := deal(p, p, deviceID)
	require.NoError(t, err)
	require.Equal(t, "arn%3Aaws%3Alambda%3Aus-east-1%3A123456789012%3Afunction%3AcheckDevice", cargo.VerifierName)
}

func TestDeal_undecodableVerifierName(t *testing.T) {
	p, deviceID := setup(t, verifierTag("check%zzDevice"))

	_, err := deal(p, p, deviceID)
	require.ErrorIs(t, err, dealer.ErrVerification)
	require.NotContains(t, p.Calls(), "Invoke")
}

// describer overrides the device certificate description.
type describer struct {
	*memory.Platform
	desc *platform.CertificateDescription
}

func (d describer) DescribeCertificate(ctx context.Context, certificateID string) (*platform.CertificateDescription, error) {
	return d.desc, nil
}

// tagger overrides the CA tags.
type tagger struct {
	*memory.Platform
	tags []platform.Tag
}

func (t tagger) ListTags(ctx context.Context, resourceArn string) ([]platform.Tag, error) {
	return t.tags, nil
}

// caDescriber overrides the CA certificate description.
type caDescriber struct {
	*memory.Platform
	desc *platform.CACertificateDescription
}

func (d caDescriber) DescribeCACertificate(ctx context.Context, certificateID string) (*platform.CACertificateDescription, error) {
	return d.desc, nil
}

func TestDeal_informationNotFound(t *testing.T) {
	tests := []struct {
		name     string
		registry func(p *memory.Platform) platform.DeviceRegistry
		message  string
	}{
		{
			name: "device description missing CA id",
			registry: func(p *memory.Platform) platform.DeviceRegistry {
				return describer{p, &platform.CertificateDescription{CertificateArn: "arn:aws:iot:us-east-1:123456789012:cert/dev-1"}}
			},
			message: `"caCertificateId" is required`,
		},
		{
			name: "device description malformed arn",
			registry: func(p *memory.Platform) platform.DeviceRegistry {
				return describer{p, &platform.CertificateDescription{CACertificateID: "cert-1", CertificateArn: "cert/dev-1"}}
			},
			message: `"certificateArn" must start with "arn"`,
		},
		{
			name: "device description absent",
			registry: func(p *memory.Platform) platform.DeviceRegistry {
				return describer{p, nil}
			},
			message: `"caCertificateId" is required`,
		},
		{
			name: "CA description without arn",
			registry: func(p *memory.Platform) platform.DeviceRegistry {
				return caDescriber{p, &platform.CACertificateDescription{CertificateID: "cert-1"}}
			},
			message: `"certificateArn" is required`,
		},
		{
			name: "tag without key",
			registry: func(p *memory.Platform) platform.DeviceRegistry {
				return tagger{p, []platform.Tag{{Value: aws.String("checkDevice")}}}
			},
			message: `"tags[0].Key" is required`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, deviceID := setup(t)

			_, err := deal(p, tt.registry(p), deviceID)
			require.ErrorIs(t, err, dealer.ErrInformationNotFound)
			require.ErrorContains(t, err, tt.message)

			failure := dealer.Classify(err)
			require.Equal(t, dealer.KindInformationNotFound, failure.Kind)
			require.Equal(t, 404, failure.Status)

			for _, op := range provisioningCalls {
				require.NotContains(t, p.Calls(), op)
			}
		})
	}
}

func TestDeal_tagWithoutValue(t *testing.T) {
	p, deviceID := setup(t, platform.Tag{Key: aws.String(platform.VerifierTagKey)})

	cargo, err := deal(p, p, deviceID)
	require.NoError(t, err)
	require.Equal(t, "", cargo.VerifierName)
	require.NotContains(t, p.Calls(), "Invoke")
}

func TestDeal_unknownDevice(t *testing.T) {
	p, _ := setup(t)

	_, err := deal(p, p, "missing")
	require.ErrorIs(t, err, dealer.ErrResourceNotFound)
	require.Equal(t, dealer.KindResourceNotFound, dealer.Classify(err).Kind)
}

func TestDeal_partialProvisioningIsLeftInPlace(t *testing.T) {
	p, deviceID := setup(t)
	p.FailOn("AttachThingPrincipal", errors.New("boom"))

	_, err := deal(p, p, deviceID)
	require.ErrorIs(t, err, dealer.ErrProcessing)

	_, targets, ok := p.Policy("Policy-dev-1")
	require.True(t, ok)
	require.Len(t, targets, 1)

	require.NotContains(t, p.Calls(), "UpdateCertificateStatus")

	cert, ok := p.Certificate("dev-1")
	require.True(t, ok)
	require.Equal(t, platform.CertificateStatusPendingActivation, cert.Status)
}

func TestDevicePolicyDocument(t *testing.T) {
	doc, err := devicePolicyDocument()
	require.NoError(t, err)
	require.JSONEq(t, `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["iot:Connect","iot:Publish"],"Resource":"*"}]}`, doc)
}
