package memory

import (
	"maps"
	"slices"

	"github.com/wolfeidau/jitr/internal/platform"
)

// Object returns a stored object body.
func (p *Platform) Object(bucket, key string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	body, ok := p.objects[bucket+"/"+key]
	return slices.Clone(body), ok
}

// ObjectCount returns the number of stored objects.
func (p *Platform) ObjectCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.objects)
}

// CACertificateTags returns the tags attached to a registered CA.
func (p *Platform) CACertificateTags(certificateID string) ([]platform.Tag, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ca, ok := p.caCertificates[certificateID]
	if !ok {
		return nil, false
	}
	return slices.Clone(ca.tags), true
}

// SetCACertificateTags replaces the tags on a registered CA.
func (p *Platform) SetCACertificateTags(certificateID string, tags []platform.Tag) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ca, ok := p.caCertificates[certificateID]
	if !ok {
		return false
	}
	ca.tags = slices.Clone(tags)
	return true
}

// Certificate returns a device certificate description.
func (p *Platform) Certificate(certificateID string) (platform.CertificateDescription, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	desc, ok := p.certificates[certificateID]
	if !ok {
		return platform.CertificateDescription{}, false
	}
	return *desc, true
}

// ProvisionedThing describes a device identity and what is attached to it.
type ProvisionedThing struct {
	Thing      platform.Thing
	Attributes map[string]string
	Principals []string
}

// Thing returns a device identity record.
func (p *Platform) Thing(thingName string) (ProvisionedThing, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	thing, ok := p.things[thingName]
	if !ok {
		return ProvisionedThing{}, false
	}

	return ProvisionedThing{
		Thing:      thing,
		Attributes: maps.Clone(p.thingAttributes[thingName]),
		Principals: slices.Clone(p.thingPrincipals[thingName]),
	}, true
}

// Policy returns a policy document and the targets it is attached to.
func (p *Platform) Policy(policyName string) (string, []string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.policies[policyName]
	if !ok {
		return "", nil, false
	}
	return doc, slices.Clone(p.policyTargets[policyName]), true
}
