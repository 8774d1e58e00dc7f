// Package verifiers holds the allow-list of verifier names a CA may be tagged with.
package verifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/wolfeidau/jitr/internal/dealer"
)

// Source loads the current allow-list. Implementations are consulted on every
// registration request.
type Source interface {
	Verifiers(ctx context.Context) ([]string, error)
}

// JSONSource parses an allow-list encoded as a JSON array of names, as found
// in the VERIFIERS environment variable. An empty value allows no verifiers.
type JSONSource string

func (s JSONSource) Verifiers(ctx context.Context) ([]string, error) {
	return Parse(string(s))
}

// Parse decodes a JSON array of verifier names.
func Parse(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("%w: invalid verifier allow-list: %w", dealer.ErrProcessing, err)
	}

	return names, nil
}

// Check rejects a non-empty verifier name that is not in the allow-list. An
// empty name always passes and means no verification.
func Check(ctx context.Context, src Source, name string) error {
	if name == "" {
		return nil
	}

	allowed, err := src.Verifiers(ctx)
	if err != nil {
		return err
	}

	if !slices.Contains(allowed, name) {
		return dealer.Inputf("verifier %q is not in the allowed verifiers list", name)
	}

	return nil
}
