package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/model"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/version"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func NewGormStore(db *gorm.DB, c compress.Compress) *GormStore {
	return &GormStore{
		db:       db,
		compress: c,
	}
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db       *gorm.DB
	compress compress.Compress
}

func (g *GormStore) CreateDocument(ctx context.Context, doc *document.Document) (Revision, error) {
	row, err := g.encodeDocument(doc)
	if err != nil {
		return 0, err
	}
	row.Revision = 1

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Document{}).Where("id = ?", doc.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errs.Conflictf("document %s already exists", doc.ID)
		}

		if err := tx.Create(row).Error; err != nil {
			return err
		}

		return syncChildren(tx, doc)
	})
	if err != nil {
		return 0, err
	}

	return 1, nil
}

func (g *GormStore) GetDocument(ctx context.Context, id string) (*document.Document, Revision, error) {
	var row model.Document
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, errs.NotFoundf("document %s", id)
	}
	if err != nil {
		return nil, 0, err
	}

	doc, err := g.decodeDocument(ctx, &row)
	if err != nil {
		return nil, 0, err
	}

	return doc, Revision(row.Revision), nil
}

func (g *GormStore) UpdateDocument(ctx context.Context, doc *document.Document, expected Revision) (Revision, error) {
	row, err := g.encodeDocument(doc)
	if err != nil {
		return 0, err
	}
	next := expected + 1

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Document{}).
			Where("id = ? AND revision = ?", doc.ID, int64(expected)).
			Updates(map[string]any{
				"revision":         int64(next),
				"title":            row.Title,
				"category":         row.Category,
				"description":      row.Description,
				"status":           row.Status,
				"logs":             row.Logs,
				"public":           row.Public,
				"last_modified":    row.LastModified,
				"last_modified_by": row.LastModifiedBy,
				"approval":         row.Approval,
				"file_meta":        row.FileMeta,
				"file_data":        row.FileData,
				"compression":      row.Compression,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.missOrConflict(tx, doc.ID, expected)
		}

		return syncChildren(tx, doc)
	})
	if err != nil {
		return 0, err
	}

	return next, nil
}

func (g *GormStore) missOrConflict(tx *gorm.DB, id string, expected Revision) error {
	var row model.Document
	err := tx.Select("id", "revision").Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return missOrConflict(false, id, 0, expected)
	}
	if err != nil {
		return err
	}
	return missOrConflict(true, id, Revision(row.Revision), expected)
}

// syncChildren inserts versions beyond the stored head, rewrites the tag
// index and upserts share links.
func syncChildren(tx *gorm.DB, doc *document.Document) error {
	var head int
	err := tx.Model(&model.DocumentVersion{}).
		Where("document_id = ?", doc.ID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&head).Error
	if err != nil {
		return err
	}

	entries := doc.Versions.Entries()
	if head > len(entries) {
		return errs.Inconsistent("document %s has %d stored versions but %d in memory", doc.ID, head, len(entries))
	}
	if head < len(entries) {
		rows := make([]*model.DocumentVersion, 0, len(entries)-head)
		for _, e := range entries[head:] {
			row, err := encodeVersion(doc.ID, e)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if err := tx.Create(rows).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("document_id = ?", doc.ID).Delete(&model.DocumentTag{}).Error; err != nil {
		return err
	}
	if len(doc.Tags) > 0 {
		tags := make([]*model.DocumentTag, len(doc.Tags))
		for i, t := range doc.Tags {
			tags[i] = &model.DocumentTag{DocumentID: doc.ID, Tag: t}
		}
		if err := tx.Create(tags).Error; err != nil {
			return err
		}
	}

	links := doc.Links.All()
	if len(links) == 0 {
		return nil
	}

	var taken int64
	err = tx.Model(&model.ShareLink{}).
		Where("token IN ? AND document_id <> ?", doc.Links.Tokens(), doc.ID).
		Count(&taken).Error
	if err != nil {
		return err
	}
	if taken > 0 {
		return errs.Conflictf("share token already belongs to another document")
	}

	for _, l := range links {
		row := &model.ShareLink{
			Token:      l.Token,
			DocumentID: doc.ID,
			Access:     string(l.Access),
			ExpiresAt:  l.ExpiresAt,
			CreatedBy:  l.CreatedBy,
			CreatedAt:  l.CreatedAt,
			Active:     l.Active,
		}
		if err := tx.Save(row).Error; err != nil {
			return err
		}
	}

	return nil
}

func (g *GormStore) DeleteDocument(ctx context.Context, id string, expected Revision) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND revision = ?", id, int64(expected)).Delete(&model.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return g.missOrConflict(tx, id, expected)
		}

		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentTag{}).Error; err != nil {
			return err
		}
		return tx.Where("document_id = ?", id).Delete(&model.ShareLink{}).Error
	})
}

func (g *GormStore) GetDocumentByShareToken(ctx context.Context, token string) (*document.Document, Revision, error) {
	var link model.ShareLink
	err := g.db.WithContext(ctx).Where("token = ?", token).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, errs.NotFoundf("share link")
	}
	if err != nil {
		return nil, 0, err
	}

	return g.GetDocument(ctx, link.DocumentID)
}

func (g *GormStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]*document.Document, error) {
	db := g.db.WithContext(ctx)
	query := db.Model(&model.Document{})
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if len(filter.Tags) > 0 {
		tagged := db.Model(&model.DocumentTag{}).Select("document_id").Where("tag IN ?", filter.Tags)
		query = query.Where("id IN (?)", tagged)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []*model.Document
	if err := query.Order("uploaded_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}

	docs := make([]*document.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := g.decodeDocument(ctx, row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

func (g *GormStore) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	details := ""
	if entry.Details != nil {
		var err error
		if details, err = encodeJSON(entry.Details); err != nil {
			return err
		}
	}

	row := &model.AuditLog{
		ID:            entry.ID.String(),
		Action:        string(entry.Action),
		Kind:          string(entry.Kind),
		Actor:         entry.Actor,
		DocumentID:    entry.DocumentID,
		DocumentTitle: entry.DocumentTitle,
		Status:        entry.Status,
		At:            entry.At,
		Details:       details,
	}
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.AuditCounter{}).
			Where("name = ?", model.AuditCounterName).
			Update("seq", gorm.Expr("seq + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.Inconsistent("audit counter is missing, run migrate")
		}

		var counter model.AuditCounter
		if err := tx.Where("name = ?", model.AuditCounterName).First(&counter).Error; err != nil {
			return err
		}
		row.Seq = counter.Seq

		return tx.Create(row).Error
	})
	if err != nil {
		return err
	}
	entry.Seq = row.Seq

	return nil
}

func (g *GormStore) ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	query := g.db.WithContext(ctx).Model(&model.AuditLog{}).Where("seq > ?", filter.AfterSeq)
	if filter.DocumentID != "" {
		query = query.Where("document_id = ?", filter.DocumentID)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ?", filter.Actor)
	}
	if filter.Kind != "" {
		query = query.Where("kind = ?", string(filter.Kind))
	}
	if filter.Ascending {
		query = query.Order("seq asc")
	} else {
		query = query.Order("seq desc")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []*model.AuditLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]*audit.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := decodeAudit(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}

func (g *GormStore) GetAudit(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	var row model.AuditLog
	err := g.db.WithContext(ctx).Where("id = ?", id.String()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFoundf("audit entry %s", id)
	}
	if err != nil {
		return nil, err
	}

	return decodeAudit(&row)
}

func (g *GormStore) CountAudit(ctx context.Context) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(&model.AuditLog{}).Count(&count).Error
	return count, err
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&GormStore{db: tx, compress: g.compress})
	})
	if isBusy(err) {
		return errs.Conflictf("document store is busy: %v", err)
	}
	return err
}

// isBusy reports a sqlite lock that outlived the busy timeout. The writer
// holding the lock has moved the data underneath the caller.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func (g *GormStore) encodeDocument(doc *document.Document) (*model.Document, error) {
	logs, err := encodeJSON(doc.Logs)
	if err != nil {
		return nil, err
	}
	flow, err := encodeJSON(doc.Approval)
	if err != nil {
		return nil, err
	}

	row := &model.Document{
		ID:             doc.ID,
		Title:          doc.Title,
		Category:       doc.Category,
		Description:    doc.Description,
		Status:         doc.Status,
		Logs:           logs,
		Public:         doc.Public,
		UploadedBy:     doc.UploadedBy,
		UploadedAt:     doc.UploadedAt,
		LastModified:   doc.LastModified,
		LastModifiedBy: doc.LastModifiedBy,
		Approval:       flow,
		Compression:    g.compress.Name(),
	}

	if doc.File != nil {
		meta := *doc.File
		meta.Data = nil
		if row.FileMeta, err = encodeJSON(meta); err != nil {
			return nil, err
		}
		if len(doc.File.Data) > 0 {
			if row.FileData, err = g.compress.Encode(doc.File.Data); err != nil {
				return nil, fmt.Errorf("failed to compress file of document %s: %w", doc.ID, err)
			}
		}
	}

	return row, nil
}

func (g *GormStore) decodeDocument(ctx context.Context, row *model.Document) (*document.Document, error) {
	db := g.db.WithContext(ctx)
	doc := &document.Document{
		ID:             row.ID,
		Title:          row.Title,
		Category:       row.Category,
		Description:    row.Description,
		Status:         row.Status,
		Logs:           []string{},
		Public:         row.Public,
		UploadedBy:     row.UploadedBy,
		UploadedAt:     row.UploadedAt,
		LastModified:   row.LastModified,
		LastModifiedBy: row.LastModifiedBy,
		Approval:       &approval.Flow{},
	}
	if err := decodeJSON(row.Logs, &doc.Logs); err != nil {
		return nil, err
	}
	if err := decodeJSON(row.Approval, doc.Approval); err != nil {
		return nil, err
	}

	if row.FileMeta != "" {
		doc.File = &blob.File{}
		if err := decodeJSON(row.FileMeta, doc.File); err != nil {
			return nil, err
		}
		if len(row.FileData) > 0 {
			codec, err := compress.New(row.Compression)
			if err != nil {
				return nil, err
			}
			if doc.File.Data, err = codec.Decode(row.FileData); err != nil {
				return nil, fmt.Errorf("failed to decompress file of document %s: %w", row.ID, err)
			}
		}
	}

	var versions []*model.DocumentVersion
	if err := db.Where("document_id = ?", row.ID).Order("version asc").Find(&versions).Error; err != nil {
		return nil, err
	}
	entries := make([]version.Entry, 0, len(versions))
	for _, v := range versions {
		e, err := decodeVersion(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	chain, err := version.Restore(entries)
	if err != nil {
		logrus.Errorf("document %s: %v", row.ID, err)
		return nil, err
	}
	doc.Versions = chain

	var tags []*model.DocumentTag
	if err := db.Where("document_id = ?", row.ID).Find(&tags).Error; err != nil {
		return nil, err
	}
	doc.Tags = make([]string, len(tags))
	for i, t := range tags {
		doc.Tags[i] = t.Tag
	}
	slices.Sort(doc.Tags)

	var links []*model.ShareLink
	if err := db.Where("document_id = ?", row.ID).Order("created_at asc").Find(&links).Error; err != nil {
		return nil, err
	}
	restored := make([]share.Link, len(links))
	for i, l := range links {
		restored[i] = share.Link{
			Token:     l.Token,
			Access:    share.Access(l.Access),
			ExpiresAt: l.ExpiresAt,
			CreatedBy: l.CreatedBy,
			CreatedAt: l.CreatedAt,
			Active:    l.Active,
		}
	}
	doc.Links = share.Restore(restored)

	return doc, nil
}

func encodeVersion(docID string, e version.Entry) (*model.DocumentVersion, error) {
	tags, err := encodeJSON(e.Snapshot.Tags)
	if err != nil {
		return nil, err
	}
	return &model.DocumentVersion{
		DocumentID:  docID,
		Version:     e.Number,
		Previous:    e.Previous,
		Author:      e.Author,
		At:          e.At,
		Title:       e.Snapshot.Title,
		Category:    e.Snapshot.Category,
		Description: e.Snapshot.Description,
		Status:      e.Snapshot.Status,
		Tags:        tags,
		Summary:     e.Summary,
	}, nil
}

func decodeVersion(row *model.DocumentVersion) (version.Entry, error) {
	e := version.Entry{
		Number:   row.Version,
		At:       row.At,
		Author:   row.Author,
		Previous: row.Previous,
		Summary:  row.Summary,
		Snapshot: version.Snapshot{
			Title:       row.Title,
			Category:    row.Category,
			Description: row.Description,
			Status:      row.Status,
		},
	}
	if err := decodeJSON(row.Tags, &e.Snapshot.Tags); err != nil {
		return version.Entry{}, err
	}
	return e, nil
}

func decodeAudit(row *model.AuditLog) (*audit.Entry, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, err
	}

	e := &audit.Entry{
		ID:            id,
		Seq:           row.Seq,
		Action:        audit.Action(row.Action),
		Kind:          audit.Kind(row.Kind),
		Actor:         row.Actor,
		DocumentID:    row.DocumentID,
		DocumentTitle: row.DocumentTitle,
		Status:        row.Status,
		At:            row.At,
	}
	if row.Details != "" {
		e.Details = &audit.Details{}
		if err := decodeJSON(row.Details, e.Details); err != nil {
			return nil, err
		}
	}

	return e, nil
}
