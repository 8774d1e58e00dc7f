package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for common error conditions
var (
	ErrJournalThrottled = errors.New("journal request throttled")
	ErrEntryExists      = errors.New("journal entry already exists")
	ErrInvalidPipeline  = errors.New("invalid pipeline")
)

// Pipeline names the dealer an entry was recorded for.
type Pipeline string

const (
	PipelineRegistration Pipeline = "registration"
	PipelineActivation   Pipeline = "activation"
)

// Valid reports whether p is a known pipeline.
func (p Pipeline) Valid() bool {
	return p == PipelineRegistration || p == PipelineActivation
}

// OutcomeSuccess is the outcome of a deal that completed. Failed deals record
// their error kind instead.
const OutcomeSuccess = "Success"

// JournalEntry records a single boundary invocation.
type JournalEntry struct {
	ID            string    `dynamodbav:"entry_id" json:"id"`
	Pipeline      Pipeline  `dynamodbav:"pipeline" json:"pipeline"`
	CertificateID string    `dynamodbav:"certificate_id,omitempty" json:"certificateId,omitempty"`
	VerifierName  string    `dynamodbav:"verifier_name,omitempty" json:"verifierName,omitempty"`
	Outcome       string    `dynamodbav:"outcome" json:"outcome"`
	Status        int       `dynamodbav:"status" json:"status"`
	Message       string    `dynamodbav:"message,omitempty" json:"message,omitempty"`
	RequestID     string    `dynamodbav:"request_id,omitempty" json:"requestId,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// Succeeded reports whether the deal completed.
func (e *JournalEntry) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

// JournalStore persists deal outcomes. Entries are never updated.
type JournalStore interface {
	Append(ctx context.Context, entry *JournalEntry) error

	// List returns the most recent entries for a pipeline, newest first.
	List(ctx context.Context, pipeline Pipeline, limit int) ([]*JournalEntry, error)

	// ListByCertificate returns every entry naming the certificate, newest first.
	ListByCertificate(ctx context.Context, certificateID string) ([]*JournalEntry, error)
}
