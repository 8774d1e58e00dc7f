// Package activation activates a device certificate after the verifier named
// by its CA, if any, has approved it.
package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/platform"
	"github.com/wolfeidau/jitr/internal/schema"
)

const (
	thingSchemaVersion = "v1"
	policyNamePrefix   = "Policy-"
)

// rejection stands in for a verifier that produced no payload.
var rejection = []byte(`{"body":{"verified":false}}`)

// Props configures an activation Dealer.
type Props struct {
	DeviceCertificateID string

	Registry platform.DeviceRegistry
	Invoker  platform.Invoker
}

// Cargo is the result of a successful activation. VerifierName is empty when
// no verification applied.
type Cargo struct {
	CertificateID string `json:"certificateId"`
	VerifierName  string `json:"verifierName"`
}

// WorkTable is the state handed from one step to the next.
type WorkTable struct {
	DeviceCertificateID          string
	DeviceCertificateArn         string
	CACertificateID              string
	DeviceCertificateDescription platform.CertificateDescription
	VerifierName                 string
}

type step struct {
	name string
	run  func(ctx context.Context, wt WorkTable) (WorkTable, error)
}

var _ dealer.Dealer[Cargo] = (*Dealer)(nil)

// Dealer runs the device activation pipeline.
type Dealer struct {
	props Props
}

// New creates an activation Dealer.
func New(props Props) *Dealer {
	return &Dealer{props: props}
}

// Deal looks up the device and its CA, runs the verifier when one is named and
// provisions the device, in that order.
func (d *Dealer) Deal(ctx context.Context) (Cargo, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("pipeline", "activation").
		Str("certificate_id", d.props.DeviceCertificateID).
		Logger()

	steps := []step{
		{"getDeviceCertificateInformation", d.getDeviceCertificateInformation},
		{"getVerifierName", d.getVerifierName},
		{"verify", d.verify},
		{"provision", d.provision},
	}

	wt := WorkTable{DeviceCertificateID: d.props.DeviceCertificateID}

	for _, s := range steps {
		next, err := s.run(ctx, wt)
		if err != nil {
			logger.Error().Err(err).Str("step", s.name).Str("verifier_name", wt.VerifierName).Msg("activation step failed")
			return Cargo{}, err
		}
		wt = next
		logger.Debug().Str("step", s.name).Msg("activation step completed")
	}

	logger.Info().Str("verifier_name", wt.VerifierName).Msg("device activated")

	return Cargo{CertificateID: wt.DeviceCertificateID, VerifierName: wt.VerifierName}, nil
}

func (d *Dealer) getDeviceCertificateInformation(ctx context.Context, wt WorkTable) (WorkTable, error) {
	desc, err := d.props.Registry.DescribeCertificate(ctx, wt.DeviceCertificateID)
	if err != nil {
		return wt, dealer.Processing("describe device certificate", err)
	}

	if desc == nil {
		desc = &platform.CertificateDescription{}
	}

	checked := schema.DeviceCertificateDescription{
		CACertificateID: desc.CACertificateID,
		CertificateArn:  desc.CertificateArn,
	}
	if err := schema.Check(checked); err != nil {
		return wt, dealer.InformationNotFound("device certificate information missing", err)
	}

	wt.CACertificateID = checked.CACertificateID
	wt.DeviceCertificateArn = checked.CertificateArn
	wt.DeviceCertificateDescription = *desc

	return wt, nil
}

func (d *Dealer) getVerifierName(ctx context.Context, wt WorkTable) (WorkTable, error) {
	desc, err := d.props.Registry.DescribeCACertificate(ctx, wt.CACertificateID)
	if err != nil {
		return wt, dealer.Processing("describe CA certificate", err)
	}

	if desc == nil {
		desc = &platform.CACertificateDescription{}
	}

	ca := schema.CACertificateDescription{CertificateArn: desc.CertificateArn}
	if err := schema.Check(ca); err != nil {
		return wt, dealer.InformationNotFound("CA certificate information missing", err)
	}

	tags, err := d.props.Registry.ListTags(ctx, ca.CertificateArn)
	if err != nil {
		return wt, dealer.Processing("list CA certificate tags", err)
	}

	tagList := schema.TagList{Tags: make([]schema.Tag, 0, len(tags))}
	for _, tag := range tags {
		tagList.Tags = append(tagList.Tags, schema.Tag{Key: tag.Key, Value: tag.Value})
	}
	if err := schema.Check(tagList); err != nil {
		return wt, dealer.InformationNotFound("CA certificate tags malformed", err)
	}

	wt.VerifierName = tagList.Lookup(platform.VerifierTagKey)

	return wt, nil
}

// verify asks the named verifier to judge the device. Anything short of an
// explicit approval fails the pipeline.
func (d *Dealer) verify(ctx context.Context, wt WorkTable) (WorkTable, error) {
	if wt.VerifierName == "" {
		return wt, nil
	}

	name, err := url.PathUnescape(wt.VerifierName)
	if err != nil {
		return wt, dealer.Verification(fmt.Sprintf("invalid verifier name %q", wt.VerifierName), err)
	}

	payload, err := json.Marshal(wt.DeviceCertificateDescription)
	if err != nil {
		return wt, dealer.Verification("encode device certificate description", err)
	}

	result, err := d.props.Invoker.Invoke(ctx, name, payload)
	if err != nil {
		return wt, dealer.Verification(fmt.Sprintf("invoke verifier %s", name), err)
	}

	if len(result) == 0 {
		result = rejection
	}

	if _, err := schema.DecodeVerification(result); err != nil {
		return wt, dealer.Verification(fmt.Sprintf("verifier %s did not approve device", name), err)
	}

	return wt, nil
}

func (d *Dealer) provision(ctx context.Context, wt WorkTable) (WorkTable, error) {
	thing, err := d.props.Registry.CreateThing(ctx, wt.DeviceCertificateID, map[string]string{"version": thingSchemaVersion})
	if err != nil {
		return wt, dealer.Processing("create thing", err)
	}

	if err := schema.Check(schema.Thing{ThingName: thing.ThingName}); err != nil {
		return wt, dealer.InformationNotFound("thing information missing", err)
	}

	document, err := devicePolicyDocument()
	if err != nil {
		return wt, dealer.Processing("encode policy document", err)
	}

	policy, err := d.props.Registry.CreatePolicy(ctx, policyNamePrefix+wt.DeviceCertificateID, document)
	if err != nil {
		return wt, dealer.Processing("create policy", err)
	}

	if err := schema.Check(schema.Policy{PolicyName: policy.PolicyName}); err != nil {
		return wt, dealer.InformationNotFound("policy information missing", err)
	}

	if err := d.props.Registry.AttachPolicy(ctx, policy.PolicyName, wt.DeviceCertificateArn); err != nil {
		return wt, dealer.Processing("attach policy", err)
	}

	if err := d.props.Registry.AttachThingPrincipal(ctx, thing.ThingName, wt.DeviceCertificateArn); err != nil {
		return wt, dealer.Processing("attach thing principal", err)
	}

	if err := d.props.Registry.UpdateCertificateStatus(ctx, wt.DeviceCertificateID, platform.CertificateStatusActive); err != nil {
		return wt, dealer.Processing("activate certificate", err)
	}

	return wt, nil
}
