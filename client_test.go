package docflow

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/cache"
	"github.com/emrgen/docflow/internal/compress"
	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/server"
	"github.com/emrgen/docflow/internal/service"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bs, err := store.NewBadgerStore("", compress.NewLZ4())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	srv := httptest.NewServer(server.NewRouter(server.NewHandler(
		service.NewDocumentService(bs, cache.Nop{}, blob.NewMemory()),
		"http://docs.local",
	)))
	t.Cleanup(srv.Close)

	return srv.URL
}

func TestClient_DocumentLifecycle(t *testing.T) {
	base := newTestServer(t)
	ctx := context.Background()
	staff := NewClient(base, "sam", "Staff")
	admin := NewClient(base, "ada", "Admin")
	anon := NewClient(base, "", "")

	doc, rev, err := staff.CreateDocument(ctx, CreateRequest{
		Title:    "Board bring-up",
		Category: document.CategoryEmbedded,
		Tags:     []string{"hw"},
		File:     &FileUpload{Name: "notes.txt", ContentType: "text/plain", Data: []byte("uart at 115200")},
	})
	require.NoError(t, err)
	assert.Equal(t, store.Revision(1), rev)
	assert.Equal(t, "Requirement Analysis", doc.Status)
	assert.Equal(t, 1, doc.CurrentVersion())

	data, err := anon.File(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "uart at 115200", string(data))

	status := "System Specification"
	doc, rev, err = staff.UpdateDocument(ctx, doc.ID, rev, document.Patch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, store.Revision(2), rev)
	assert.Equal(t, 2, doc.CurrentVersion())

	_, _, err = admin.UpdateDocument(ctx, doc.ID, 1, document.Patch{Status: &status})
	assert.True(t, errors.Is(err, errs.ErrConflict))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.Status)

	versions, err := anon.Versions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)

	diff, err := anon.Diff(ctx, doc.ID, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, diff.Status)
	assert.Equal(t, "System Specification", diff.Status.New)

	_, err = staff.SetupApproval(ctx, doc.ID, approval.Single, nil)
	require.NoError(t, err)
	record, complete, err := admin.SubmitApproval(ctx, doc.ID, approval.Approved, "ship it")
	require.NoError(t, err)
	assert.True(t, complete)

	verified, err := anon.VerifySignature(ctx, doc.ID, "ada", record.Signature)
	require.NoError(t, err)
	assert.Equal(t, approval.Approved, verified.Decision)

	_, err = anon.VerifySignature(ctx, doc.ID, "sam", record.Signature)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	expires := time.Now().Add(time.Hour)
	link, err := staff.CreateShareLink(ctx, doc.ID, share.Download, &expires)
	require.NoError(t, err)
	assert.Equal(t, "http://docs.local/shared/"+link.Token, link.URL)

	view, err := anon.OpenShared(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", view.FileName)
	assert.Equal(t, []byte("uart at 115200"), view.File)

	require.NoError(t, staff.DeactivateShareLink(ctx, doc.ID, link.Token))
	_, err = anon.OpenShared(ctx, link.Token)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	err = staff.DeleteDocument(ctx, doc.ID, store.AnyRevision)
	assert.True(t, errors.Is(err, errs.ErrForbidden))
	require.NoError(t, admin.DeleteDocument(ctx, doc.ID, store.AnyRevision))

	entries, err := anon.AuditLog(ctx, audit.Filter{DocumentID: doc.ID, Ascending: true})
	require.NoError(t, err)
	kinds := make([]audit.Kind, len(entries))
	for i, e := range entries {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []audit.Kind{
		audit.KindCreate,
		audit.KindStatusChange,
		audit.KindUpdate,
		audit.KindApprove,
		audit.KindShare,
		audit.KindView,
		audit.KindShare,
		audit.KindDelete,
	}, kinds)
}

func TestClient_ListAndStats(t *testing.T) {
	base := newTestServer(t)
	ctx := context.Background()
	staff := NewClient(base, "sam", "Staff")

	for _, title := range []string{"Alpha", "Beta", "Gamma"} {
		_, _, err := staff.CreateDocument(ctx, CreateRequest{Title: title, Category: "Normal File"})
		require.NoError(t, err)
	}

	docs, err := staff.ListDocuments(ctx, store.DocumentFilter{Search: "eta"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Beta", docs[0].Title)

	docs, err = staff.ListDocuments(ctx, store.DocumentFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	stats, err := staff.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DocumentCount)
	assert.Equal(t, map[string]int{"Normal File": 3}, stats.DocumentsByCategory)
	assert.EqualValues(t, 3, stats.AuditCount)

	_, _, err = NewClient(base, "vic", "Viewer").CreateDocument(ctx, CreateRequest{Title: "x", Category: "y"})
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	_, _, err = NewClient(base, "eve", "Root").GetDocument(ctx, docs[0].ID)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}
