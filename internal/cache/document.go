package cache

import (
	"context"

	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/store"
)

// DocumentCache is a read-through cache for documents.
type DocumentCache interface {
	// GetDocument gets a document and the revision it was cached at. A miss
	// returns a nil document and no error.
	GetDocument(ctx context.Context, id string) (*document.Document, store.Revision, error)
	// SetDocument caches a document at the given revision. A revision not
	// newer than one already cached is ignored.
	SetDocument(ctx context.Context, doc *document.Document, rev store.Revision) error
	// DeleteDocument drops a deleted document from the cache. Later fills of
	// the same id are ignored.
	DeleteDocument(ctx context.Context, id string) error
}

var _ DocumentCache = Nop{}

// Nop caches nothing.
type Nop struct{}

func (Nop) GetDocument(ctx context.Context, id string) (*document.Document, store.Revision, error) {
	return nil, 0, nil
}

func (Nop) SetDocument(ctx context.Context, doc *document.Document, rev store.Revision) error {
	return nil
}

func (Nop) DeleteDocument(ctx context.Context, id string) error {
	return nil
}
