// Package memory provides an in-memory device-management platform, object
// store and function runtime for development and tests. Data is lost on restart.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/pki"
	"github.com/wolfeidau/jitr/internal/platform"
)

const (
	defaultRegion  = "us-east-1"
	defaultAccount = "123456789012"
)

// Function is an in-memory function body, invoked with the caller's payload.
type Function func(ctx context.Context, payload []byte) ([]byte, error)

type caCertificate struct {
	description platform.CACertificateDescription
	tags        []platform.Tag
}

// Platform implements the platform capabilities in memory.
type Platform struct {
	mu sync.RWMutex

	region  string
	account string
	newID   func() string
	now     func() time.Time

	registrationCode string
	caCertificates   map[string]*caCertificate                   // certificate_id -> CA
	certificates     map[string]*platform.CertificateDescription // certificate_id -> device certificate
	things           map[string]platform.Thing                   // thing_name -> Thing
	thingAttributes  map[string]map[string]string                // thing_name -> attributes
	thingPrincipals  map[string][]string                         // thing_name -> principal ARNs
	policies         map[string]string                           // policy_name -> document
	policyTargets    map[string][]string                         // policy_name -> target ARNs
	objects          map[string][]byte                           // bucket/key -> body
	functions        map[string]Function                         // function name -> body
	failures         map[string]error                            // operation -> injected error
	calls            []string
}

// Option configures a Platform.
type Option func(*Platform)

// WithIDs makes the platform assign the given certificate identifiers in order
// before falling back to generated ones.
func WithIDs(ids ...string) Option {
	return func(p *Platform) {
		queue := slices.Clone(ids)
		fallback := p.newID
		p.newID = func() string {
			if len(queue) == 0 {
				return fallback()
			}
			id := queue[0]
			queue = queue[1:]
			return id
		}
	}
}

// WithClock overrides the clock used for creation dates.
func WithClock(now func() time.Time) Option {
	return func(p *Platform) {
		p.now = now
	}
}

// New creates an empty in-memory platform.
func New(opts ...Option) *Platform {
	p := &Platform{
		region:          defaultRegion,
		account:         defaultAccount,
		newID:           func() string { return uuid.NewString() },
		now:             time.Now,
		caCertificates:  make(map[string]*caCertificate),
		certificates:    make(map[string]*platform.CertificateDescription),
		things:          make(map[string]platform.Thing),
		thingAttributes: make(map[string]map[string]string),
		thingPrincipals: make(map[string][]string),
		policies:        make(map[string]string),
		policyTargets:   make(map[string][]string),
		objects:         make(map[string][]byte),
		functions:       make(map[string]Function),
		failures:        make(map[string]error),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// FailOn makes every later call of the named operation return err.
func (p *Platform) FailOn(operation string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[operation] = err
}

// RegisterFunction makes a function invocable by name.
func (p *Platform) RegisterFunction(name string, fn Function) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.functions[name] = fn
}

// Calls returns the operations performed so far, in order.
func (p *Platform) Calls() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.calls)
}

// record logs the call and returns any injected failure. Callers hold the lock.
func (p *Platform) record(operation string) error {
	p.calls = append(p.calls, operation)
	return p.failures[operation]
}

func (p *Platform) arn(resource string) string {
	return fmt.Sprintf("arn:aws:iot:%s:%s:%s", p.region, p.account, resource)
}

func (p *Platform) GetRegistrationCode(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetRegistrationCode"); err != nil {
		return "", err
	}

	if p.registrationCode == "" {
		sum := sha256.Sum256([]byte(p.account + p.region))
		p.registrationCode = hex.EncodeToString(sum[:])
	}

	return p.registrationCode, nil
}

// RegisterCACertificate registers a CA after checking the verification
// certificate is signed by it and carries the registration code.
func (p *Platform) RegisterCACertificate(ctx context.Context, req platform.CARegistrationRequest) (platform.CARegistration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("RegisterCACertificate"); err != nil {
		return platform.CARegistration{}, err
	}

	caCert, err := pki.ParseCertificatePEM([]byte(req.CACertificate))
	if err != nil {
		return platform.CARegistration{}, fmt.Errorf("invalid CA certificate: %w", err)
	}

	verificationCert, err := pki.ParseCertificatePEM([]byte(req.VerificationCertificate))
	if err != nil {
		return platform.CARegistration{}, fmt.Errorf("invalid verification certificate: %w", err)
	}

	if err := verificationCert.CheckSignatureFrom(caCert); err != nil {
		return platform.CARegistration{}, fmt.Errorf("verification certificate is not signed by the CA: %w", err)
	}

	if p.registrationCode == "" || verificationCert.Subject.CommonName != p.registrationCode {
		return platform.CARegistration{}, fmt.Errorf("verification certificate common name does not match the registration code")
	}

	id := p.newID()
	now := p.now()

	status := platform.CertificateStatusInactive
	if req.SetAsActive {
		status = platform.CertificateStatusActive
	}
	autoRegistration := "DISABLE"
	if req.AllowAutoRegistration {
		autoRegistration = "ENABLE"
	}

	p.caCertificates[id] = &caCertificate{
		description: platform.CACertificateDescription{
			CertificateArn:         p.arn("cacert/" + id),
			CertificateID:          id,
			Status:                 status,
			CertificatePem:         req.CACertificate,
			OwnedBy:                p.account,
			AutoRegistrationStatus: autoRegistration,
			CreationDate:           &now,
			CustomerVersion:        1,
			GenerationID:           uuid.NewString(),
			CertificateMode:        "DEFAULT",
			Validity:               &platform.Validity{NotBefore: &caCert.NotBefore, NotAfter: &caCert.NotAfter},
		},
		tags: slices.Clone(req.Tags),
	}

	return platform.CARegistration{CertificateID: id, CertificateArn: p.arn("cacert/" + id)}, nil
}

// AddDeviceCertificate simulates the platform auto-registering a device
// certificate presented by a device, leaving it pending activation.
func (p *Platform) AddDeviceCertificate(caCertificateID, certificatePem string) (platform.CertificateDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.caCertificates[caCertificateID]; !ok {
		return platform.CertificateDescription{}, fmt.Errorf("CA certificate %s: %w", caCertificateID, dealer.ErrResourceNotFound)
	}

	id := p.newID()
	now := p.now()

	desc := &platform.CertificateDescription{
		CertificateArn:   p.arn("cert/" + id),
		CertificateID:    id,
		CACertificateID:  caCertificateID,
		Status:           platform.CertificateStatusPendingActivation,
		CertificatePem:   certificatePem,
		OwnedBy:          p.account,
		CreationDate:     &now,
		LastModifiedDate: &now,
		CustomerVersion:  1,
		GenerationID:     uuid.NewString(),
		CertificateMode:  "DEFAULT",
	}
	p.certificates[id] = desc

	return *desc, nil
}

func (p *Platform) DescribeCertificate(ctx context.Context, certificateID string) (*platform.CertificateDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("DescribeCertificate"); err != nil {
		return nil, err
	}

	desc, ok := p.certificates[certificateID]
	if !ok {
		return nil, fmt.Errorf("certificate %s: %w", certificateID, dealer.ErrResourceNotFound)
	}

	clone := *desc
	return &clone, nil
}

func (p *Platform) DescribeCACertificate(ctx context.Context, certificateID string) (*platform.CACertificateDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("DescribeCACertificate"); err != nil {
		return nil, err
	}

	ca, ok := p.caCertificates[certificateID]
	if !ok {
		return nil, fmt.Errorf("CA certificate %s: %w", certificateID, dealer.ErrResourceNotFound)
	}

	clone := ca.description
	return &clone, nil
}

func (p *Platform) ListTags(ctx context.Context, resourceArn string) ([]platform.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("ListTags"); err != nil {
		return nil, err
	}

	for _, ca := range p.caCertificates {
		if ca.description.CertificateArn == resourceArn {
			return slices.Clone(ca.tags), nil
		}
	}

	return nil, fmt.Errorf("resource %s: %w", resourceArn, dealer.ErrResourceNotFound)
}

func (p *Platform) CreateThing(ctx context.Context, thingName string, attributes map[string]string) (platform.Thing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreateThing"); err != nil {
		return platform.Thing{}, err
	}

	// creating an identical thing is idempotent on the platform
	thing := platform.Thing{ThingName: thingName, ThingArn: p.arn("thing/" + thingName)}
	p.things[thingName] = thing
	p.thingAttributes[thingName] = maps.Clone(attributes)

	return thing, nil
}

func (p *Platform) CreatePolicy(ctx context.Context, policyName, document string) (platform.Policy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreatePolicy"); err != nil {
		return platform.Policy{}, err
	}

	if _, exists := p.policies[policyName]; exists {
		return platform.Policy{}, fmt.Errorf("policy %s already exists", policyName)
	}

	if !json.Valid([]byte(document)) {
		return platform.Policy{}, fmt.Errorf("policy document for %s is not valid JSON", policyName)
	}

	p.policies[policyName] = document

	return platform.Policy{PolicyName: policyName, PolicyArn: p.arn("policy/" + policyName)}, nil
}

func (p *Platform) AttachPolicy(ctx context.Context, policyName, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("AttachPolicy"); err != nil {
		return err
	}

	if _, ok := p.policies[policyName]; !ok {
		return fmt.Errorf("policy %s: %w", policyName, dealer.ErrResourceNotFound)
	}

	p.policyTargets[policyName] = append(p.policyTargets[policyName], target)

	return nil
}

func (p *Platform) AttachThingPrincipal(ctx context.Context, thingName, principal string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("AttachThingPrincipal"); err != nil {
		return err
	}

	if _, ok := p.things[thingName]; !ok {
		return fmt.Errorf("thing %s: %w", thingName, dealer.ErrResourceNotFound)
	}

	p.thingPrincipals[thingName] = append(p.thingPrincipals[thingName], principal)

	return nil
}

func (p *Platform) UpdateCertificateStatus(ctx context.Context, certificateID string, status platform.CertificateStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("UpdateCertificateStatus"); err != nil {
		return err
	}

	desc, ok := p.certificates[certificateID]
	if !ok {
		return fmt.Errorf("certificate %s: %w", certificateID, dealer.ErrResourceNotFound)
	}

	now := p.now()
	desc.Status = status
	desc.LastModifiedDate = &now

	return nil
}

func (p *Platform) PutObject(ctx context.Context, bucket, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("PutObject"); err != nil {
		return err
	}

	p.objects[bucket+"/"+key] = slices.Clone(body)

	return nil
}

// Invoke runs a registered function. The function runs without the platform lock held.
func (p *Platform) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	p.mu.Lock()
	err := p.record("Invoke")
	fn, ok := p.functions[name]
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("function %s: %w", name, dealer.ErrResourceNotFound)
	}

	return fn(ctx, payload)
}
