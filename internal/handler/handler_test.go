package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/jitr/internal/activation"
	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/platform"
	"github.com/wolfeidau/jitr/internal/platform/memory"
	"github.com/wolfeidau/jitr/internal/registration"
	"github.com/wolfeidau/jitr/internal/store"
	memstore "github.com/wolfeidau/jitr/internal/store/memory"
	"github.com/wolfeidau/jitr/internal/verifiers"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newHandlers(p *memory.Platform, journal store.JournalStore, allowed string) *Handlers {
	return New(Config{
		Bucket:    registration.Bucket{Name: "bundles", Prefix: "ca"},
		Verifiers: verifiers.JSONSource(allowed),
		Registrar: p,
		Store:     p,
		Registry:  p,
		Invoker:   p,
		Journal:   journal,
		Now:       func() time.Time { return now },
	})
}

func approve(ctx context.Context, _ []byte) ([]byte, error) {
	return []byte(`{"statusCode":200,"body":{"verified":true}}`), nil
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	p := memory.New(memory.WithIDs("cert-1", "dev-1"))
	journal := memstore.NewJournalStore()
	h := newHandlers(p, journal, `["checkDevice"]`)

	var received platform.CertificateDescription
	p.RegisterFunction("checkDevice", func(ctx context.Context, payload []byte) ([]byte, error) {
		require.NoError(t, json.Unmarshal(payload, &received))
		return approve(ctx, payload)
	})

	resp, err := h.Register(ctx, []byte(`{"verifierName":"checkDevice","csrSubjects":{"organizationName":"Acme"}}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, registration.Cargo{CertificateID: "cert-1"}, resp.Body)

	device, err := p.AddDeviceCertificate("cert-1", "device-pem")
	require.NoError(t, err)

	resp, err = h.Activate(ctx, []byte(`{"certificateId":"`+device.CertificateID+`"}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, activation.Cargo{CertificateID: "dev-1", VerifierName: "checkDevice"}, resp.Body)

	require.Equal(t, "cert-1", received.CACertificateID)

	thing, ok := p.Thing("dev-1")
	require.True(t, ok)
	require.Equal(t, []string{device.CertificateArn}, thing.Principals)

	_, targets, ok := p.Policy("Policy-dev-1")
	require.True(t, ok)
	require.Equal(t, []string{device.CertificateArn}, targets)

	cert, ok := p.Certificate("dev-1")
	require.True(t, ok)
	require.Equal(t, platform.CertificateStatusActive, cert.Status)

	registrations, err := journal.List(ctx, store.PipelineRegistration, 0)
	require.NoError(t, err)
	require.Len(t, registrations, 1)
	require.Equal(t, "cert-1", registrations[0].CertificateID)
	require.Equal(t, "checkDevice", registrations[0].VerifierName)
	require.True(t, registrations[0].Succeeded())
	require.Equal(t, now, registrations[0].CreatedAt)

	activations, err := journal.ListByCertificate(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, activations, 1)
	require.Equal(t, store.PipelineActivation, activations[0].Pipeline)
	require.Equal(t, "checkDevice", activations[0].VerifierName)
}

func TestRegister_verifierNotAllowed(t *testing.T) {
	p := memory.New()
	journal := memstore.NewJournalStore()
	h := newHandlers(p, journal, `["checkDevice"]`)

	resp, err := h.Register(context.Background(), []byte(`{"verifierName":"other"}`))
	require.ErrorIs(t, err, dealer.ErrInput)
	require.Equal(t, 422, resp.StatusCode)

	failure, ok := resp.Body.(dealer.Failure)
	require.True(t, ok)
	require.Equal(t, dealer.KindInput, failure.Kind)
	require.Equal(t, 422, failure.Status)

	// rejected before any external call
	require.Empty(t, p.Calls())

	entries, err := journal.List(context.Background(), store.PipelineRegistration, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "InputError", entries[0].Outcome)
	require.Equal(t, "other", entries[0].VerifierName)
	require.Empty(t, entries[0].CertificateID)
}

func TestRegister_emptyAllowList(t *testing.T) {
	p := memory.New()
	h := newHandlers(p, nil, "")

	resp, err := h.Register(context.Background(), []byte(`{"verifierName":"checkDevice"}`))
	require.ErrorIs(t, err, dealer.ErrInput)
	require.Equal(t, 422, resp.StatusCode)
	require.Empty(t, p.Calls())
}

func TestRegister_malformedAllowList(t *testing.T) {
	p := memory.New()
	h := newHandlers(p, nil, `checkDevice`)

	resp, err := h.Register(context.Background(), []byte(`{"verifierName":"checkDevice"}`))
	require.ErrorIs(t, err, dealer.ErrProcessing)
	require.Equal(t, 500, resp.StatusCode)
	require.Empty(t, p.Calls())
}

func TestRegister_castingFailure(t *testing.T) {
	p := memory.New()
	h := newHandlers(p, nil, "")

	resp, err := h.Register(context.Background(), []byte(`{"csrSubjects":{"organizationName":42}}`))
	require.ErrorIs(t, err, dealer.ErrInput)
	require.Equal(t, 422, resp.StatusCode)
	require.Empty(t, p.Calls())
}

func TestRegister_emptyEvent(t *testing.T) {
	p := memory.New(memory.WithIDs("cert-1"))
	h := newHandlers(p, nil, "")

	resp, err := h.Register(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, registration.Cargo{CertificateID: "cert-1"}, resp.Body)

	tags, ok := p.CACertificateTags("cert-1")
	require.True(t, ok)
	require.Empty(t, tags)
}

func TestActivate_invalidEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "missing certificate id", raw: `{}`},
		{name: "empty certificate id", raw: `{"certificateId":""}`},
		{name: "not json", raw: `certificate`},
		{name: "wrong type", raw: `{"certificateId":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := memory.New()
			h := newHandlers(p, nil, "")

			resp, err := h.Activate(context.Background(), []byte(tt.raw))
			require.ErrorIs(t, err, dealer.ErrInput)
			require.Equal(t, 422, resp.StatusCode)
			require.Empty(t, p.Calls())
		})
	}
}

func TestActivate_rejected(t *testing.T) {
	ctx := context.Background()
	p := memory.New(memory.WithIDs("cert-1", "dev-1"))
	journal := memstore.NewJournalStore()
	h := newHandlers(p, journal, `["checkDevice"]`)

	p.RegisterFunction("checkDevice", func(ctx context.Context, _ []byte) ([]byte, error) {
		return []byte(`{"body":{"verified":false}}`), nil
	})

	_, err := h.Register(ctx, []byte(`{"verifierName":"checkDevice"}`))
	require.NoError(t, err)

	_, err = p.AddDeviceCertificate("cert-1", "device-pem")
	require.NoError(t, err)

	resp, err := h.Activate(ctx, []byte(`{"certificateId":"dev-1"}`))
	require.ErrorIs(t, err, dealer.ErrVerification)
	require.Equal(t, 500, resp.StatusCode)
	require.Equal(t, dealer.KindVerification, resp.Body.(dealer.Failure).Kind)

	_, ok := p.Thing("dev-1")
	require.False(t, ok)

	entries, err := journal.ListByCertificate(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "VerificationError", entries[0].Outcome)
	require.Equal(t, 500, entries[0].Status)
	require.NotEmpty(t, entries[0].Message)
}

func TestActivate_unknownDevice(t *testing.T) {
	h := newHandlers(memory.New(), nil, "")

	resp, err := h.Activate(context.Background(), []byte(`{"certificateId":"missing"}`))
	require.ErrorIs(t, err, dealer.ErrResourceNotFound)
	require.Equal(t, 404, resp.StatusCode)
}

type failingJournal struct {
	store.JournalStore
}

func (failingJournal) Append(ctx context.Context, entry *store.JournalEntry) error {
	return store.ErrJournalThrottled
}

func TestJournalFailureDoesNotChangeResponse(t *testing.T) {
	p := memory.New(memory.WithIDs("cert-1"))
	h := newHandlers(p, failingJournal{}, "")

	resp, err := h.Register(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}
