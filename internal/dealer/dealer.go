// Package dealer defines the contract shared by the onboarding pipelines.
//
// A dealer is built with everything it needs and runs its steps once per
// Deal call. The error taxonomy returned by dealers lives here too so the
// boundary handlers can classify failures without knowing which pipeline
// produced them.
package dealer

import "context"

// Dealer runs a fixed sequence of steps and returns the cargo it produced.
type Dealer[C any] interface {
	Deal(ctx context.Context) (C, error)
}

// Func adapts a plain function to the Dealer interface.
type Func[C any] func(ctx context.Context) (C, error)

func (f Func[C]) Deal(ctx context.Context) (C, error) {
	return f(ctx)
}
