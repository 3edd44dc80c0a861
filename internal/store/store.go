package store

import (
	"context"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/document"
	"github.com/google/uuid"
)

// Revision is the optimistic concurrency token of a stored document. It
// grows by one on every stored write and is unrelated to the version number.
type Revision int64

// AnyRevision asks the caller to use whatever revision it just loaded.
const AnyRevision Revision = 0

type Store interface {
	DocumentStore
	AuditStore
	// Transaction runs f with a store bound to one transaction. The
	// transaction commits only if f returns nil.
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

// DocumentFilter narrows ListDocuments. Zero fields match everything.
type DocumentFilter struct {
	// Tags matches documents carrying any of the tags.
	Tags     []string
	Category string
	Status   string
	// Search is a case-insensitive substring of title or description.
	Search string
	Limit  int
}

type DocumentStore interface {
	// CreateDocument stores a new document at revision 1.
	CreateDocument(ctx context.Context, doc *document.Document) (Revision, error)
	// GetDocument retrieves a document and its current revision.
	GetDocument(ctx context.Context, id string) (*document.Document, Revision, error)
	// UpdateDocument replaces the document if its stored revision equals expected.
	UpdateDocument(ctx context.Context, doc *document.Document, expected Revision) (Revision, error)
	// DeleteDocument removes the document if its stored revision equals expected.
	DeleteDocument(ctx context.Context, id string, expected Revision) error
	// GetDocumentByShareToken retrieves the document owning a share token.
	GetDocumentByShareToken(ctx context.Context, token string) (*document.Document, Revision, error)
	// ListDocuments lists documents, newest upload first.
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*document.Document, error)
}

type AuditStore interface {
	// AppendAudit stores an entry and assigns its Seq.
	audit.Sink
	// ListAudit lists entries matching the filter.
	ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error)
	// GetAudit retrieves an entry by id.
	GetAudit(ctx context.Context, id uuid.UUID) (*audit.Entry, error)
	// CountAudit returns the number of stored entries.
	CountAudit(ctx context.Context) (int64, error)
}
