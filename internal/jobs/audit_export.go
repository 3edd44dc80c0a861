package jobs

import (
	"context"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/queue"
	"github.com/emrgen/docflow/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	auditExportCursorKey = "audit:export:cursor"
	auditExportBatch     = 500
	auditExportTimeout   = 30 * time.Second
)

var _ CronJob = (*AuditExportTask)(nil)

// AuditExportTask ships new audit entries to a publisher. The sequence number
// of the last delivered entry is kept in the KV store, so a failed batch is
// sent again on the next tick.
type AuditExportTask struct {
	audit     store.AuditStore
	kv        cache.KV
	publisher queue.AuditPublisher
	cron      string
}

func NewAuditExportTask(schedule string, audit store.AuditStore, kv cache.KV, publisher queue.AuditPublisher) *AuditExportTask {
	return &AuditExportTask{
		audit:     audit,
		kv:        kv,
		publisher: publisher,
		cron:      schedule,
	}
}

func (a *AuditExportTask) Name() string {
	return "audit_export"
}

func (a *AuditExportTask) Schedule() string {
	return a.cron
}

func (a *AuditExportTask) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), auditExportTimeout)
	defer cancel()

	n, err := a.Export(ctx)
	if err != nil {
		logrus.Errorf("audit export failed: %v", err)
		return
	}
	if n > 0 {
		logrus.Infof("exported %d audit entries", n)
	}
}

// Export publishes batches until no entry is left after the cursor and
// returns the number of entries sent.
func (a *AuditExportTask) Export(ctx context.Context) (int, error) {
	var cursor int64
	if _, err := a.kv.Get(ctx, auditExportCursorKey, &cursor); err != nil {
		return 0, err
	}

	total := 0
	for {
		entries, err := a.audit.ListAudit(ctx, audit.Filter{AfterSeq: cursor, Ascending: true, Limit: auditExportBatch})
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			return total, nil
		}

		if err := a.publisher.Publish(ctx, entries); err != nil {
			return total, err
		}

		cursor = entries[len(entries)-1].Seq
		if err := a.kv.Set(ctx, auditExportCursorKey, cursor, 0); err != nil {
			return total, err
		}
		total += len(entries)

		if len(entries) < auditExportBatch {
			return total, nil
		}
	}
}
