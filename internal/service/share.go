package service

import (
	"context"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/store"
	"github.com/sirupsen/logrus"
)

// CreateShareLink issues a new link for a document.
func (d *DocumentService) CreateShareLink(ctx context.Context, id string, expect store.Revision, access share.Access, expiresAt *time.Time, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.CreateShareLink(access, expiresAt, d.op(c))
	})
}

// DeactivateShareLink revokes a link. The link stays listed as inactive.
func (d *DocumentService) DeactivateShareLink(ctx context.Context, id string, expect store.Revision, token string, c Caller) (*Outcome, error) {
	return d.mutate(ctx, id, expect, func(doc *document.Document) (*document.Mutation, error) {
		return doc.DeactivateShareLink(token, d.op(c))
	})
}

// ShareLinks lists every link of a document, inactive ones included.
func (d *DocumentService) ShareLinks(ctx context.Context, id string) ([]share.Link, error) {
	doc, _, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.Links.All(), nil
}

// ResolveShareLink opens a document through a share token. Successful access
// is audited; unknown, inactive and expired tokens are not.
func (d *DocumentService) ResolveShareLink(ctx context.Context, token string, prov audit.Provenance) (share.Shared, error) {
	doc, _, err := d.store.GetDocumentByShareToken(ctx, token)
	if err != nil {
		return share.Shared{}, err
	}

	if link, ok := doc.Links.Get(token); ok && link.Access == share.Download && doc.File != nil {
		doc = doc.Clone()
		if err := d.fill(ctx, doc.File); err != nil {
			return share.Shared{}, err
		}
	}

	view, entry, err := doc.AccessShared(token, d.now().UTC(), prov)
	if err != nil {
		return share.Shared{}, err
	}

	if err := d.store.AppendAudit(ctx, entry); err != nil {
		return share.Shared{}, err
	}

	logrus.Debugf("document %s opened through a share link", doc.ID)

	return view, nil
}
