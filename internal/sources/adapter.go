// Package sources defines the fare source capability interface and the
// generic adapters that implement it. Site-specific extraction lives behind
// Adapter; the collection core never looks inside.
package sources

import (
	"context"
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/alex-user-go/fares/internal/search/types"
)

// Adapter extracts raw listings for a query from one source.
//
// Run returns a lazy sequence. Each element is either a listing with a nil
// error, or a nil listing with the error that ended the run; an adapter
// yields at most one error and stops after it. Adapters must honor ctx and
// bound every internal wait themselves.
type Adapter interface {
	ID() string
	Run(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error]
}

// ErrRecoverable marks errors after which the listings already emitted are
// still trustworthy, e.g. a later page failed to load.
var ErrRecoverable = errors.New("recoverable source error")

// Recoverable marks err as recoverable.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrRecoverable)
}

// IsRecoverable reports whether err was marked with Recoverable.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// FuncAdapter adapts a plain function to Adapter.
type FuncAdapter struct {
	id string
	fn func(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error]
}

// NewFuncAdapter creates a FuncAdapter.
func NewFuncAdapter(id string, fn func(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error]) *FuncAdapter {
	return &FuncAdapter{id: id, fn: fn}
}

// ID returns the source id.
func (a *FuncAdapter) ID() string { return a.id }

// Run calls the wrapped function.
func (a *FuncAdapter) Run(ctx context.Context, q types.Query) iter.Seq2[types.RawListing, error] {
	return a.fn(ctx, q)
}
