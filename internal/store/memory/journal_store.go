package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/jitr/internal/store"
)

// JournalStore implements store.JournalStore using in-memory storage.
// This implementation is for testing and local runs - data is lost on restart.
type JournalStore struct {
	mu sync.RWMutex

	entries []*store.JournalEntry          // append order
	byID    map[string]*store.JournalEntry // entry_id -> entry
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		byID: make(map[string]*store.JournalEntry),
	}
}

// Append records an entry.
func (s *JournalStore) Append(ctx context.Context, entry *store.JournalEntry) error {
	if !entry.Pipeline.Valid() {
		return store.ErrInvalidPipeline
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return store.ErrEntryExists
	}

	// Clone to avoid external modifications
	clone := *entry
	s.entries = append(s.entries, &clone)
	s.byID[clone.ID] = &clone

	return nil
}

// List returns up to limit entries for the pipeline, newest first. A limit of
// zero or less returns every entry.
func (s *JournalStore) List(ctx context.Context, pipeline store.Pipeline, limit int) ([]*store.JournalEntry, error) {
	if !pipeline.Valid() {
		return nil, store.ErrInvalidPipeline
	}

	return s.collect(limit, func(e *store.JournalEntry) bool {
		return e.Pipeline == pipeline
	}), nil
}

// ListByCertificate returns every entry naming the certificate, newest first.
func (s *JournalStore) ListByCertificate(ctx context.Context, certificateID string) ([]*store.JournalEntry, error) {
	if certificateID == "" {
		return []*store.JournalEntry{}, nil
	}

	return s.collect(0, func(e *store.JournalEntry) bool {
		return e.CertificateID == certificateID
	}), nil
}

func (s *JournalStore) collect(limit int, match func(*store.JournalEntry) bool) []*store.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*store.JournalEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if !match(s.entries[i]) {
			continue
		}
		clone := *s.entries[i]
		result = append(result, &clone)
		if limit > 0 && len(result) == limit {
			break
		}
	}

	return result
}
