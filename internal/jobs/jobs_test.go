package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	seqs    []int64
	failing bool
}

func (r *recorder) Publish(ctx context.Context, entries []*audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("broker unavailable")
	}
	for _, e := range entries {
		r.seqs = append(r.seqs, e.Seq)
	}
	return nil
}

func (r *recorder) Close() {}

func appendEntries(t *testing.T, s store.AuditStore, n int) {
	t.Helper()
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		e := audit.NewEntry(audit.ActionEdit, audit.KindUpdate, "sam", at.Add(time.Duration(i)*time.Second))
		e.DocumentID = "doc-1"
		require.NoError(t, s.AppendAudit(context.Background(), e))
	}
}

func TestAuditExportTask_Export(t *testing.T) {
	bs, err := store.NewBadgerStore("", compress.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	mr := miniredis.RunT(t)
	kv := cache.NewRedis(cache.NewClient(mr.Addr()))
	pub := &recorder{}
	task := NewAuditExportTask("@every 1s", bs, kv, pub)
	ctx := context.Background()

	appendEntries(t, bs, 3)
	n, err := task.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = task.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing new after the cursor")

	appendEntries(t, bs, 2)
	pub.failing = true
	_, err = task.Export(ctx)
	assert.Error(t, err)

	pub.failing = false
	n, err = task.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "failed batch is sent again")

	require.Len(t, pub.seqs, 5)
	for i := 1; i < len(pub.seqs); i++ {
		assert.Greater(t, pub.seqs[i], pub.seqs[i-1])
	}

	var cursor int64
	ok, err := kv.Get(ctx, auditExportCursorKey, &cursor)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pub.seqs[4], cursor)
}

type blockingJob struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingJob) Name() string     { return "blocking" }
func (b *blockingJob) Schedule() string { return "@every 1h" }
func (b *blockingJob) Run() {
	close(b.started)
	<-b.release
}

func TestTaskExecutor_SkipsRunningJob(t *testing.T) {
	job := &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
	ex := NewTaskExecutor(job)

	done := make(chan bool)
	go func() { done <- ex.runOnce(job) }()
	<-job.started

	assert.False(t, ex.runOnce(job))

	close(job.release)
	assert.True(t, <-done)
	assert.False(t, ex.runningCronJobs.Contains(job.Name()))
}

func TestTaskExecutor_InvalidSchedule(t *testing.T) {
	ex := NewTaskExecutor(NewStatsTask("not a schedule", nil))
	assert.Error(t, ex.Run())
}
