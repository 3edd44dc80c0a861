package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/store"
	"github.com/emrgen/docflow/internal/tester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin  = Caller{By: document.Principal{Username: "ada", Role: document.RoleAdmin}}
	staff  = Caller{By: document.Principal{Username: "sam", Role: document.RoleStaff}}
	viewer = Caller{By: document.Principal{Username: "vic", Role: document.RoleViewer}}
)

type clock struct {
	at time.Time
}

func (c *clock) now() time.Time {
	return c.at
}

func (c *clock) advance(d time.Duration) {
	c.at = c.at.Add(d)
}

func newService(t *testing.T) (*DocumentService, *clock) {
	t.Helper()
	s := NewDocumentService(
		store.NewGormStore(tester.TestDB(), compress.NewGZip()),
		cache.NewRedisDocumentCache(tester.Redis(t), compress.NewNop()),
		blob.NewMemory(),
	)
	c := &clock{at: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

func createDocument(t *testing.T, s *DocumentService, title string) *Outcome {
	t.Helper()
	out, err := s.Create(context.Background(), document.Draft{
		Title:       title,
		Category:    "Normal File",
		Description: "first draft",
		Tags:        []string{"spec"},
		File:        blob.Inspect("spec.txt", "text/plain", []byte("the payload")),
	}, staff)
	require.NoError(t, err)
	return out
}

func auditOf(t *testing.T, s *DocumentService, id string) []*audit.Entry {
	t.Helper()
	entries, err := s.AuditLog(context.Background(), audit.Filter{DocumentID: id, Ascending: true})
	require.NoError(t, err)
	return entries
}

func strp(s string) *string {
	return &s
}

func TestDocumentService_Create(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	out := createDocument(t, s, "Spec v1")
	assert.Equal(t, store.Revision(1), out.Revision)
	assert.Equal(t, 1, out.Document.CurrentVersion())
	assert.Greater(t, out.Entry.Seq, int64(0))

	got, rev, err := s.Get(ctx, out.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(1), rev)
	assert.Equal(t, "Spec v1", got.Title)
	require.NotNil(t, got.File)
	assert.Empty(t, got.File.Data, "bytes live in the blob store")

	f, err := s.File(ctx, out.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("the payload"), f.Data)

	entries := auditOf(t, s, out.Document.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionUpload, entries[0].Action)
	assert.Equal(t, "sam", entries[0].Actor)
}

func TestDocumentService_CreateRejected(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	before, err := s.store.CountAudit(ctx)
	require.NoError(t, err)

	tests := []struct {
		name   string
		draft  document.Draft
		caller Caller
		want   error
	}{
		{"viewer", document.Draft{Title: "a", Category: "b"}, viewer, errs.ErrForbidden},
		{"missing title", document.Draft{Category: "b"}, staff, errs.ErrValidation},
		{"bad embedded status", document.Draft{Title: "a", Category: document.CategoryEmbedded, Status: "Shipping"}, staff, errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.draft, tt.caller)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	after, err := s.store.CountAudit(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDocumentService_ConcurrentEdit(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	// both editors loaded revision 1
	c.advance(time.Minute)
	first, err := s.Update(ctx, id, 1, document.Patch{Description: strp("by ada")}, admin)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(2), first.Revision)
	assert.Equal(t, 2, first.Document.CurrentVersion())

	_, err = s.Update(ctx, id, 1, document.Patch{Description: strp("by sam")}, staff)
	assert.True(t, errors.Is(err, errs.ErrConflict))

	// sam reloads and retries
	_, rev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(2), rev)

	second, err := s.Update(ctx, id, rev, document.Patch{Description: strp("by sam")}, staff)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Document.CurrentVersion())

	versions, err := s.Versions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Number)
	}

	entries := auditOf(t, s, id)
	require.Len(t, entries, 3)
	assert.Equal(t, "ada", entries[1].Actor)
	assert.Equal(t, "sam", entries[2].Actor)
}

func TestDocumentService_RacingEditors(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID
	rev := store.Revision(1)

	editors := []Caller{admin, staff}
	for round := 0; round < 10; round++ {
		results := make([]error, len(editors))
		var wg sync.WaitGroup
		for i, editor := range editors {
			wg.Add(1)
			go func(i int, editor Caller) {
				defer wg.Done()
				desc := fmt.Sprintf("round %d by %s", round, editor.By.Username)
				_, results[i] = s.Update(ctx, id, rev, document.Patch{Description: &desc}, editor)
			}(i, editor)
		}
		wg.Wait()

		var ok, conflicts int
		for _, err := range results {
			switch errs.KindOf(err) {
			case errs.KindNone:
				ok++
			case errs.KindConflict:
				conflicts++
			default:
				t.Fatalf("round %d: unexpected error %v", round, err)
			}
		}
		require.Equal(t, 1, ok, "round %d", round)
		require.Equal(t, 1, conflicts, "round %d", round)

		var err error
		_, rev, err = s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.Revision(round+2), rev)
	}

	assert.Len(t, auditOf(t, s, id), 11)
}

func TestDocumentService_UpdateRejectedLeavesNoTrace(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	tests := []struct {
		name   string
		patch  document.Patch
		caller Caller
		want   error
	}{
		{"empty patch", document.Patch{}, staff, errs.ErrValidation},
		{"no change", document.Patch{Title: strp("Spec v1")}, staff, errs.ErrValidation},
		{"viewer", document.Patch{Title: strp("x")}, viewer, errs.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Update(ctx, id, store.AnyRevision, tt.patch, tt.caller)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := s.Update(ctx, "missing", store.AnyRevision, document.Patch{Title: strp("x")}, staff)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, rev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.Revision(1), rev)
	assert.Len(t, auditOf(t, s, id), 1)
}

func TestDocumentService_Revert(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	for _, title := range []string{"Spec v2", "Spec v3"} {
		c.advance(time.Minute)
		_, err := s.Update(ctx, id, store.AnyRevision, document.Patch{Title: strp(title)}, staff)
		require.NoError(t, err)
	}

	out, err := s.Revert(ctx, id, store.AnyRevision, 1, staff)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Document.CurrentVersion())
	assert.Equal(t, "Spec v1", out.Document.Title)
	assert.Equal(t, audit.KindVersion, out.Entry.Kind)
	assert.Equal(t, "Spec v3", out.Entry.DocumentTitle)

	v4, err := s.Version(ctx, id, 4)
	require.NoError(t, err)
	v1, err := s.Version(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, v1.Snapshot, v4.Snapshot)

	diff, err := s.Diff(ctx, id, 3, 4)
	require.NoError(t, err)
	require.NotNil(t, diff.Title)
	assert.Equal(t, "Spec v3", diff.Title.Old)
	assert.Equal(t, "Spec v1", diff.Title.New)

	_, err = s.Revert(ctx, id, store.AnyRevision, 9, staff)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDocumentService_CacheRefresh(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	_, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	cached, rev, err := s.cache.GetDocument(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, store.Revision(1), rev)

	_, err = s.Update(ctx, id, rev, document.Patch{Title: strp("Spec v2")}, staff)
	require.NoError(t, err)

	cached, rev, err = s.cache.GetDocument(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "Spec v2", cached.Title)
	assert.Equal(t, store.Revision(2), rev)

	got, rev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Spec v2", got.Title)
	assert.Equal(t, store.Revision(2), rev)
}

// pausingStore holds the first GetDocument after it has read the row.
type pausingStore struct {
	store.Store
	loaded  chan struct{}
	release chan struct{}
}

func (p *pausingStore) GetDocument(ctx context.Context, id string) (*document.Document, store.Revision, error) {
	doc, rev, err := p.Store.GetDocument(ctx, id)
	if p.loaded != nil {
		close(p.loaded)
		p.loaded = nil
		<-p.release
	}
	return doc, rev, err
}

func TestDocumentService_SlowReaderDoesNotCacheStaleRevision(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	paused := &pausingStore{Store: s.store, loaded: make(chan struct{}), release: make(chan struct{})}
	s.store = paused

	type read struct {
		rev store.Revision
		err error
	}
	slow := make(chan read, 1)
	go func() {
		_, rev, err := s.Get(ctx, id)
		slow <- read{rev, err}
	}()
	<-paused.loaded

	_, err := s.Update(ctx, id, 1, document.Patch{Title: strp("Spec v2")}, admin)
	require.NoError(t, err)

	close(paused.release)
	r := <-slow
	require.NoError(t, r.err)
	assert.Equal(t, store.Revision(1), r.rev)

	got, rev, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Spec v2", got.Title)
	assert.Equal(t, store.Revision(2), rev)

	_, err = s.Update(ctx, id, rev, document.Patch{Title: strp("Spec v3")}, staff)
	require.NoError(t, err)
}

func TestDocumentService_Delete(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	err := s.Delete(ctx, id, store.AnyRevision, staff)
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	require.NoError(t, s.Delete(ctx, id, store.AnyRevision, admin))

	_, _, err = s.Get(ctx, id)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	entries := auditOf(t, s, id)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDelete, entries[1].Action)
	assert.Equal(t, "Spec v1", entries[1].DocumentTitle)
}

func TestDocumentService_Visibility(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	id := createDocument(t, s, "Spec v1").Document.ID

	out, err := s.SetVisibility(ctx, id, store.AnyRevision, true, staff)
	require.NoError(t, err)
	assert.True(t, out.Document.Public)
	assert.Equal(t, 1, out.Document.CurrentVersion())
	require.NotNil(t, out.Entry.Details)
	assert.Equal(t, "visibility", out.Entry.Details.Field)

	_, err = s.SetVisibility(ctx, id, store.AnyRevision, true, staff)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestDocumentService_List(t *testing.T) {
	s, c := newService(t)
	ctx := context.Background()

	c.advance(24 * time.Hour)
	out, err := s.Create(ctx, document.Draft{
		Title:    "Motor driver",
		Category: document.CategoryEmbedded,
		Tags:     []string{"list-test"},
	}, staff)
	require.NoError(t, err)
	assert.Equal(t, document.EmbeddedSteps[0], out.Document.Status)

	docs, err := s.List(ctx, store.DocumentFilter{Tags: []string{"list-test"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, out.Document.ID, docs[0].ID)

	docs, err = s.List(ctx, store.DocumentFilter{Search: "motor DRIVER"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
}
