package driven

import (
	"context"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// IndexStore persists a built DocumentIndex to durable storage so a
// restarted tool server does not need to re-embed every open document.
type IndexStore interface {
	// Load returns the persisted index for handle, or domain.ErrNotFound
	// if none exists.
	Load(ctx context.Context, handle domain.Handle) (domain.DocumentIndex, error)

	// Save atomically writes idx, replacing any prior persisted index
	// for the same handle.
	Save(ctx context.Context, idx domain.DocumentIndex) error

	// Exists reports whether a persisted index is present for handle,
	// without paying the cost of loading its vectors.
	Exists(ctx context.Context, handle domain.Handle) (bool, error)

	// Delete removes the persisted index for handle, if any.
	Delete(ctx context.Context, handle domain.Handle) error
}
