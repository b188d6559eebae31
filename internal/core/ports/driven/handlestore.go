package driven

import (
	"context"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
)

// HandleStore persists the mapping from an issued Handle to the uploaded
// document's metadata and filesystem path.
type HandleStore interface {
	// Save records or replaces the document registered under handle.
	Save(ctx context.Context, doc domain.Document) error

	// Get returns the document registered under handle, or
	// domain.ErrNotFound if no such handle exists.
	Get(ctx context.Context, handle domain.Handle) (domain.Document, error)

	// List returns all registered documents, most recently uploaded first.
	List(ctx context.Context) ([]domain.Document, error)

	// Delete removes the handle and its document record.
	Delete(ctx context.Context, handle domain.Handle) error
}
