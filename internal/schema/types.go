package schema

// RegistrationCode is the platform's answer to a registration code request.
type RegistrationCode struct {
	RegistrationCode string `json:"registrationCode" validate:"required"`
}

// CARegistration is the platform's answer to a CA registration.
type CARegistration struct {
	CertificateID  string `json:"certificateId" validate:"required"`
	CertificateArn string `json:"certificateArn" validate:"required,startswith=arn"`
}

// DeviceCertificateDescription holds the fields the activation pipeline
// needs from a device certificate description.
type DeviceCertificateDescription struct {
	CACertificateID string `json:"caCertificateId" validate:"required"`
	CertificateArn  string `json:"certificateArn" validate:"required,startswith=arn"`
}

// CACertificateDescription holds the fields the activation pipeline needs
// from a CA certificate description.
type CACertificateDescription struct {
	CertificateArn string `json:"certificateArn" validate:"required,startswith=arn"`
}

// Tag is one resource tag. Value is optional.
type Tag struct {
	Key   *string `json:"Key" validate:"required,min=1"`
	Value *string `json:"Value,omitempty"`
}

// TagList is the set of tags attached to a resource.
type TagList struct {
	Tags []Tag `json:"tags" validate:"dive"`
}

// Lookup returns the value of the tag named key, or an empty string.
func (l TagList) Lookup(key string) string {
	for _, t := range l.Tags {
		if t.Key != nil && *t.Key == key {
			if t.Value == nil {
				return ""
			}
			return *t.Value
		}
	}
	return ""
}

// Verification is the judgment returned by a verifier. Only an explicit true passes.
type Verification struct {
	Verified *bool `json:"verified" validate:"required,eq=true"`
}

// Thing is the platform's answer to creating a device identity.
type Thing struct {
	ThingName string `json:"thingName" validate:"required"`
}

// Policy is the platform's answer to creating a policy.
type Policy struct {
	PolicyName string `json:"policyName" validate:"required"`
}

// ActivationEvent is the notification payload naming a registered device certificate.
type ActivationEvent struct {
	CertificateID string `json:"certificateId" validate:"required"`
}
