package service

import (
	"context"
	"errors"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/store"
	"github.com/emrgen/docflow/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Caller identifies who performs an operation and where the request came from.
type Caller struct {
	By         document.Principal
	Provenance audit.Provenance
}

// Outcome is a committed mutation together with the new stored revision.
type Outcome struct {
	*document.Mutation
	Revision store.Revision
}

// NewDocumentService creates a new DocumentService. blobs may be nil, in which
// case file bytes stay inside the stored document.
func NewDocumentService(store store.Store, cache cache.DocumentCache, blobs blob.Store) *DocumentService {
	return &DocumentService{
		store: store,
		cache: cache,
		blobs: blobs,
		now:   time.Now,
	}
}

// DocumentService runs document operations against the repository. Every
// mutation is stored together with its audit entry in one transaction.
type DocumentService struct {
	store store.Store
	cache cache.DocumentCache
	blobs blob.Store
	now   func() time.Time
}

func (d *DocumentService) op(c Caller) document.Op {
	return document.Op{By: c.By, At: d.now().UTC(), Provenance: c.Provenance}
}

// mutate loads the document, applies fn and stores the result with its audit
// entry. expect pins the revision the caller last saw; store.AnyRevision
// accepts whatever is stored.
func (d *DocumentService) mutate(ctx context.Context, id string, expect store.Revision, fn func(doc *document.Document) (*document.Mutation, error)) (*Outcome, error) {
	out := &Outcome{}
	err := d.store.Transaction(ctx, func(tx store.Store) error {
		doc, current, err := tx.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if expect != store.AnyRevision && expect != current {
			return errs.Conflictf("document %s is at revision %d, expected %d", id, current, expect)
		}

		m, err := fn(doc)
		if err != nil {
			return err
		}

		if m.Deleted {
			err = tx.DeleteDocument(ctx, id, current)
		} else {
			out.Revision, err = tx.UpdateDocument(ctx, m.Document, current)
		}
		if err != nil {
			return err
		}

		if err := tx.AppendAudit(ctx, m.Entry); err != nil {
			return err
		}

		out.Mutation = m
		return nil
	})
	if err != nil {
		d.report(id, err)
		return nil, err
	}

	d.refresh(ctx, out.Mutation, out.Revision)

	return out, nil
}

func (d *DocumentService) report(id string, err error) {
	if errors.Is(err, errs.ErrInconsistent) {
		logrus.Errorf("document %s: %v", id, err)
	}
}

// refresh caches the committed snapshot. Fills are ordered by revision, so a
// reader that loaded an older revision before the commit cannot replace it.
func (d *DocumentService) refresh(ctx context.Context, m *document.Mutation, rev store.Revision) {
	id := m.Document.ID
	if m.Deleted {
		if err := d.cache.DeleteDocument(ctx, id); err != nil {
			logrus.Warnf("failed to invalidate cached document %s: %v", id, err)
		}
		return
	}

	if err := d.cache.SetDocument(ctx, m.Document, rev); err != nil {
		logrus.Warnf("failed to cache document %s: %v", id, err)
	}
}

// Create stores a new document at version 1.
func (d *DocumentService) Create(ctx context.Context, draft document.Draft, c Caller) (*Outcome, error) {
	m, err := document.Create(uuid.NewString(), draft, d.op(c))
	if err != nil {
		return nil, err
	}

	doc := m.Document
	if d.blobs != nil && doc.File != nil && len(doc.File.Data) > 0 {
		if err := d.blobs.Put(ctx, doc.File); err != nil {
			return nil, err
		}
		doc = doc.Clone()
		doc.File.Data = nil
		m.Document = doc
	}

	out := &Outcome{Mutation: m}
	err = d.store.Transaction(ctx, func(tx store.Store) error {
		rev, err := tx.CreateDocument(ctx, doc)
		if err != nil {
			return err
		}
		out.Revision = rev
		return tx.AppendAudit(ctx, m.Entry)
	})
	if err != nil {
		d.report(doc.ID, err)
		return nil, err
	}

	logrus.Infof("document %s created by %s", doc.ID, c.By.Username)

	return out, nil
}

// Get retrieves a document and its revision, from the cache when possible.
func (d *DocumentService) Get(ctx context.Context, id string) (*document.Document, store.Revision, error) {
	doc, rev, err := d.cache.GetDocument(ctx, id)
	if err != nil {
		logrus.Warnf("failed to read cached document %s: %v", id, err)
	}
	if doc != nil {
		return doc, rev, nil
	}

	doc, rev, err = d.store.GetDocument(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	if err := d.cache.SetDocument(ctx, doc, rev); err != nil {
		logrus.Warnf("failed to cache document %s: %v", id, err)
	}

	return doc, rev, nil
}

// List lists documents, newest upload first.
func (d *DocumentService) List(ctx context.Context, filter store.DocumentFilter) ([]*document.Document, error) {
	return d.store.ListDocuments(ctx, filter)
}

// File returns the file of a document with its bytes.
func (d *DocumentService) File(ctx context.Context, id string) (*blob.File, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.File == nil {
		return nil, errs.NotFoundf("file of document %s", id)
	}

	f := doc.File.Clone()
	if err := d.fill(ctx, f); err != nil {
		return nil, err
	}

	return f, nil
}

// fill loads the bytes of f from the blob store when they are kept there.
func (d *DocumentService) fill(ctx context.Context, f *blob.File) error {
	if len(f.Data) > 0 || f.Size == 0 || d.blobs == nil {
		return nil
	}

	data, err := d.blobs.Get(ctx, f.Digest)
	if err != nil {
		return err
	}
	f.Data = data

	return nil
}

// Update applies a patch and appends a version.
func (d *DocumentService) Update(ctx context.Context, id string, expect store.Revision, p document.Patch, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.Update(p, d.op(c))
	})
}

// Revert appends a version restoring the snapshot of version n.
func (d *DocumentService) Revert(ctx context.Context, id string, expect store.Revision, n int, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.Revert(n, d.op(c))
	})
}

// Delete removes a document. Its audit entries are kept.
func (d *DocumentService) Delete(ctx context.Context, id string, expect store.Revision, c Caller) error {
	_, err := d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.Delete(d.op(c))
	})
	return err
}

// SetVisibility makes a document public or private.
func (d *DocumentService) SetVisibility(ctx context.Context, id string, expect store.Revision, public bool, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.SetVisibility(public, d.op(c))
	})
}

// Versions lists the version history, oldest first.
func (d *DocumentService) Versions(ctx context.Context, id string) ([]version.Entry, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Versions.Entries(), nil
}

// Version returns version n of a document.
func (d *DocumentService) Version(ctx context.Context, id string, n int) (version.Entry, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return version.Entry{}, err
	}
	return doc.Versions.Get(n)
}

// Diff compares two versions of a document.
func (d *DocumentService) Diff(ctx context.Context, id string, v1, v2 int) (version.Diff, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return version.Diff{}, err
	}
	return doc.Versions.Diff(v1, v2)
}
