package service

import (
	"context"
	"sync"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const recentUploads = 5

// AuditLog lists audit entries, newest first unless the filter asks otherwise.
func (d *DocumentService) AuditLog(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	return d.store.ListAudit(ctx, filter)
}

// AuditEntry retrieves one audit entry.
func (d *DocumentService) AuditEntry(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	return d.store.GetAudit(ctx, id)
}

// Stats is the dashboard summary.
type Stats struct {
	DocumentCount       int                  `json:"documentCount"`
	DocumentsByCategory map[string]int       `json:"documentsByCategory"`
	RecentUploads       []*document.Document `json:"recentUploads"`
	AuditCount          int64                `json:"auditCount"`
	PendingApprovals    int                  `json:"pendingApprovals"`
}

// Stats computes the dashboard summary.
func (d *DocumentService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{DocumentsByCategory: map[string]int{}}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := d.store.ListDocuments(ctx, store.DocumentFilter{})
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		stats.DocumentCount = len(docs)
		for _, doc := range docs {
			stats.DocumentsByCategory[doc.Category]++
			if doc.Approval != nil && doc.Approval.Configured() && !doc.Approval.Complete() {
				stats.PendingApprovals++
			}
		}
		return nil
	})
	g.Go(func() error {
		recent, err := d.store.ListDocuments(ctx, store.DocumentFilter{Limit: recentUploads})
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		stats.RecentUploads = recent
		return nil
	})
	g.Go(func() error {
		count, err := d.store.CountAudit(ctx)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		stats.AuditCount = count
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}
