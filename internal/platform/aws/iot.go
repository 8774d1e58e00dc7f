package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/jitr/internal/platform"
)

// IoTAPI is the subset of the IoT client used by IoT.
type IoTAPI interface {
	GetRegistrationCode(ctx context.Context, params *iot.GetRegistrationCodeInput, optFns ...func(*iot.Options)) (*iot.GetRegistrationCodeOutput, error)
	RegisterCACertificate(ctx context.Context, params *iot.RegisterCACertificateInput, optFns ...func(*iot.Options)) (*iot.RegisterCACertificateOutput, error)
	DescribeCertificate(ctx context.Context, params *iot.DescribeCertificateInput, optFns ...func(*iot.Options)) (*iot.DescribeCertificateOutput, error)
	DescribeCACertificate(ctx context.Context, params *iot.DescribeCACertificateInput, optFns ...func(*iot.Options)) (*iot.DescribeCACertificateOutput, error)
	ListTagsForResource(ctx context.Context, params *iot.ListTagsForResourceInput, optFns ...func(*iot.Options)) (*iot.ListTagsForResourceOutput, error)
	CreateThing(ctx context.Context, params *iot.CreateThingInput, optFns ...func(*iot.Options)) (*iot.CreateThingOutput, error)
	CreatePolicy(ctx context.Context, params *iot.CreatePolicyInput, optFns ...func(*iot.Options)) (*iot.CreatePolicyOutput, error)
	AttachPolicy(ctx context.Context, params *iot.AttachPolicyInput, optFns ...func(*iot.Options)) (*iot.AttachPolicyOutput, error)
	AttachThingPrincipal(ctx context.Context, params *iot.AttachThingPrincipalInput, optFns ...func(*iot.Options)) (*iot.AttachThingPrincipalOutput, error)
	UpdateCertificate(ctx context.Context, params *iot.UpdateCertificateInput, optFns ...func(*iot.Options)) (*iot.UpdateCertificateOutput, error)
}

var (
	_ platform.CertificateAuthorityRegistrar = (*IoT)(nil)
	_ platform.DeviceRegistry                = (*IoT)(nil)
)

// IoT implements the device-management capabilities with AWS IoT Core.
type IoT struct {
	client IoTAPI
}

// NewIoT creates a new IoT adapter
func NewIoT(client IoTAPI) *IoT {
	return &IoT{client: client}
}

func (p *IoT) GetRegistrationCode(ctx context.Context) (string, error) {
	out, err := p.client.GetRegistrationCode(ctx, &iot.GetRegistrationCodeInput{})
	if err != nil {
		return "", wrapAWSError(err, "failed to get registration code")
	}

	return aws.ToString(out.RegistrationCode), nil
}

func (p *IoT) RegisterCACertificate(ctx context.Context, req platform.CARegistrationRequest) (platform.CARegistration, error) {
	input := &iot.RegisterCACertificateInput{
		CaCertificate:           aws.String(req.CACertificate),
		VerificationCertificate: aws.String(req.VerificationCertificate),
		AllowAutoRegistration:   req.AllowAutoRegistration,
		SetAsActive:             req.SetAsActive,
		RegistrationConfig:      &types.RegistrationConfig{},
	}

	for _, tag := range req.Tags {
		input.Tags = append(input.Tags, types.Tag{Key: tag.Key, Value: tag.Value})
	}

	out, err := p.client.RegisterCACertificate(ctx, input)
	if err != nil {
		return platform.CARegistration{}, wrapAWSError(err, "failed to register CA certificate")
	}

	log.Debug().Str("certificate_id", aws.ToString(out.CertificateId)).Msg("CA certificate registered")

	return platform.CARegistration{
		CertificateID:  aws.ToString(out.CertificateId),
		CertificateArn: aws.ToString(out.CertificateArn),
	}, nil
}

func (p *IoT) DescribeCertificate(ctx context.Context, certificateID string) (*platform.CertificateDescription, error) {
	out, err := p.client.DescribeCertificate(ctx, &iot.DescribeCertificateInput{
		CertificateId: aws.String(certificateID),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to describe certificate")
	}

	d := out.CertificateDescription
	if d == nil {
		return nil, nil
	}

	return &platform.CertificateDescription{
		CertificateArn:   aws.ToString(d.CertificateArn),
		CertificateID:    aws.ToString(d.CertificateId),
		CACertificateID:  aws.ToString(d.CaCertificateId),
		Status:           platform.CertificateStatus(d.Status),
		CertificatePem:   aws.ToString(d.CertificatePem),
		OwnedBy:          aws.ToString(d.OwnedBy),
		PreviousOwnedBy:  aws.ToString(d.PreviousOwnedBy),
		CreationDate:     d.CreationDate,
		LastModifiedDate: d.LastModifiedDate,
		CustomerVersion:  aws.ToInt32(d.CustomerVersion),
		GenerationID:     aws.ToString(d.GenerationId),
		CertificateMode:  string(d.CertificateMode),
		Validity:         toValidity(d.Validity),
	}, nil
}

func (p *IoT) DescribeCACertificate(ctx context.Context, certificateID string) (*platform.CACertificateDescription, error) {
	out, err := p.client.DescribeCACertificate(ctx, &iot.DescribeCACertificateInput{
		CertificateId: aws.String(certificateID),
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to describe CA certificate")
	}

	d := out.CertificateDescription
	if d == nil {
		return nil, nil
	}

	return &platform.CACertificateDescription{
		CertificateArn:         aws.ToString(d.CertificateArn),
		CertificateID:          aws.ToString(d.CertificateId),
		Status:                 platform.CertificateStatus(d.Status),
		CertificatePem:         aws.ToString(d.CertificatePem),
		OwnedBy:                aws.ToString(d.OwnedBy),
		AutoRegistrationStatus: string(d.AutoRegistrationStatus),
		CreationDate:           d.CreationDate,
		CustomerVersion:        aws.ToInt32(d.CustomerVersion),
		GenerationID:           aws.ToString(d.GenerationId),
		CertificateMode:        string(d.CertificateMode),
		Validity:               toValidity(d.Validity),
	}, nil
}

// ListTags returns every tag on the resource, following pagination.
func (p *IoT) ListTags(ctx context.Context, resourceArn string) ([]platform.Tag, error) {
	var (
		tags      []platform.Tag
		nextToken *string
	)

	for {
		out, err := p.client.ListTagsForResource(ctx, &iot.ListTagsForResourceInput{
			ResourceArn: aws.String(resourceArn),
			NextToken:   nextToken,
		})
		if err != nil {
			return nil, wrapAWSError(err, "failed to list tags")
		}

		for _, tag := range out.Tags {
			tags = append(tags, platform.Tag{Key: tag.Key, Value: tag.Value})
		}

		if aws.ToString(out.NextToken) == "" {
			return tags, nil
		}
		nextToken = out.NextToken
	}
}

func (p *IoT) CreateThing(ctx context.Context, thingName string, attributes map[string]string) (platform.Thing, error) {
	out, err := p.client.CreateThing(ctx, &iot.CreateThingInput{
		ThingName: aws.String(thingName),
		AttributePayload: &types.AttributePayload{
			Attributes: attributes,
		},
	})
	if err != nil {
		return platform.Thing{}, wrapAWSError(err, "failed to create thing")
	}

	return platform.Thing{
		ThingName: aws.ToString(out.ThingName),
		ThingArn:  aws.ToString(out.ThingArn),
	}, nil
}

func (p *IoT) CreatePolicy(ctx context.Context, policyName, document string) (platform.Policy, error) {
	out, err := p.client.CreatePolicy(ctx, &iot.CreatePolicyInput{
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		return platform.Policy{}, wrapAWSError(err, "failed to create policy")
	}

	return platform.Policy{
		PolicyName: aws.ToString(out.PolicyName),
		PolicyArn:  aws.ToString(out.PolicyArn),
	}, nil
}

func (p *IoT) AttachPolicy(ctx context.Context, policyName, target string) error {
	_, err := p.client.AttachPolicy(ctx, &iot.AttachPolicyInput{
		PolicyName: aws.String(policyName),
		Target:     aws.String(target),
	})
	return wrapAWSError(err, "failed to attach policy")
}

func (p *IoT) AttachThingPrincipal(ctx context.Context, thingName, principal string) error {
	_, err := p.client.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(thingName),
		Principal: aws.String(principal),
	})
	return wrapAWSError(err, "failed to attach thing principal")
}

func (p *IoT) UpdateCertificateStatus(ctx context.Context, certificateID string, status platform.CertificateStatus) error {
	_, err := p.client.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     types.CertificateStatus(status),
	})
	return wrapAWSError(err, "failed to update certificate")
}

func toValidity(v *types.CertificateValidity) *platform.Validity {
	if v == nil {
		return nil
	}
	return &platform.Validity{NotBefore: v.NotBefore, NotAfter: v.NotAfter}
}
