package document

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/share"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

var (
	admin  = Principal{Username: "ada", Role: RoleAdmin}
	staff  = Principal{Username: "sam", Role: RoleStaff}
	viewer = Principal{Username: "val", Role: RoleViewer}
)

func opAt(p Principal, d time.Duration) Op {
	return Op{By: p, At: t0.Add(d)}
}

func ptr[T any](v T) *T { return &v }

func newDoc(t *testing.T) *Document {
	t.Helper()
	m, err := Create("doc-1", Draft{
		Title:       "Spec v1",
		Category:    "Normal File",
		Description: "first draft",
		Tags:        []string{"b", "a", "b"},
		File:        blob.Inspect("spec.txt", "text/plain", []byte("payload")),
	}, opAt(staff, 0))
	require.NoError(t, err)
	return m.Document
}

func assertDense(t *testing.T, d *Document) {
	t.Helper()
	for i, e := range d.Versions.Entries() {
		assert.Equal(t, i+1, e.Number)
	}
	assert.Equal(t, d.Versions.Len(), d.CurrentVersion())
}

func TestCreate(t *testing.T) {
	m, err := Create("doc-1", Draft{Title: "Spec v1", Category: "Normal File", Tags: []string{"b", "a", "b"}}, opAt(staff, 0))
	require.NoError(t, err)

	d := m.Document
	assert.Equal(t, 1, d.CurrentVersion())
	assert.Equal(t, "sam", d.UploadedBy)
	assert.Equal(t, StatusActive, d.Status)
	assert.Equal(t, []string{"a", "b"}, d.Tags)
	assert.Equal(t, "Initial version", d.Versions.Head().Summary)

	require.NotNil(t, m.Entry)
	assert.Equal(t, audit.ActionUpload, m.Entry.Action)
	assert.Equal(t, audit.KindCreate, m.Entry.Kind)
	assert.Equal(t, "Spec v1", m.Entry.DocumentTitle)
	assert.Equal(t, "doc-1", m.Entry.DocumentID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		draft  Draft
		by     Principal
		fields []string
		kind   error
	}{
		{"missing all", Draft{}, Principal{Role: RoleStaff}, []string{"title", "category", "uploadedBy"}, errs.ErrValidation},
		{"missing title", Draft{Category: "Normal File"}, staff, []string{"title"}, errs.ErrValidation},
		{"blank category", Draft{Title: "x", Category: "  "}, staff, []string{"category"}, errs.ErrValidation},
		{"bad embedded step", Draft{Title: "x", Category: CategoryEmbedded, Status: "Done"}, staff, []string{"status"}, errs.ErrValidation},
		{"viewer", Draft{Title: "x", Category: "Normal File"}, viewer, nil, errs.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Create("doc-1", tt.draft, Op{By: tt.by, At: t0})
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			if tt.fields != nil {
				var verr *errs.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.fields, verr.Fields)
			}
		})
	}
}

func TestResolveStatus(t *testing.T) {
	s, err := ResolveStatus(CategoryEmbedded, "")
	require.NoError(t, err)
	assert.Equal(t, "Requirement Analysis", s)

	for _, step := range EmbeddedSteps {
		s, err = ResolveStatus(CategoryEmbedded, step)
		require.NoError(t, err)
		assert.Equal(t, step, s)
	}

	_, err = ResolveStatus(CategoryEmbedded, "active")
	assert.True(t, errors.Is(err, errs.ErrValidation))

	s, err = ResolveStatus("Normal File", "in review")
	require.NoError(t, err)
	assert.Equal(t, "in review", s)
}

func TestUpdate(t *testing.T) {
	d := newDoc(t)

	m, err := d.Update(Patch{Description: ptr("second draft")}, opAt(staff, time.Minute))
	require.NoError(t, err)

	next := m.Document
	assert.Equal(t, 2, next.CurrentVersion())
	assert.Equal(t, 1, next.Versions.Head().Previous)
	assert.Equal(t, "Updated description", next.Versions.Head().Summary)
	assert.Equal(t, t0.Add(time.Minute), next.LastModified)
	assertDense(t, next)

	assert.Equal(t, audit.ActionEdit, m.Entry.Action)
	require.NotNil(t, m.Entry.Details)
	assert.Equal(t, []audit.Change{{Field: "description", Old: "first draft", New: "second draft"}}, m.Entry.Details.Changes)
	assert.Equal(t, "description", m.Entry.Details.Field)
	assert.Equal(t, 2, m.Entry.Details.Version)

	// the receiver is untouched
	assert.Equal(t, 1, d.CurrentVersion())
	assert.Equal(t, "first draft", d.Description)
}

func TestUpdate_AuditKeepsOldTitle(t *testing.T) {
	d := newDoc(t)

	m, err := d.Update(Patch{Title: ptr("Spec v2")}, opAt(staff, time.Minute))
	require.NoError(t, err)

	assert.Equal(t, "Spec v1", m.Entry.DocumentTitle)
	assert.Equal(t, "Spec v2", m.Document.Title)
}

func TestUpdate_StatusChange(t *testing.T) {
	d := newDoc(t)

	m, err := d.Update(Patch{Status: ptr(StatusArchived)}, opAt(admin, time.Minute))
	require.NoError(t, err)

	assert.Equal(t, audit.KindStatusChange, m.Entry.Kind)
	assert.Equal(t, StatusArchived, m.Entry.Status)
}

func TestUpdate_LogsOnlyAppendsVersion(t *testing.T) {
	d := newDoc(t)

	m, err := d.Update(Patch{Logs: &[]string{"flashed rev b"}}, opAt(staff, time.Minute))
	require.NoError(t, err)

	next := m.Document
	assert.Equal(t, 2, next.CurrentVersion())
	assert.Equal(t, "Updated logs", next.Versions.Head().Summary)
	assert.Equal(t, d.Snapshot(), next.Versions.Head().Snapshot)
	assert.Equal(t, "logs", m.Entry.Details.Field)
	assertDense(t, next)

	_, err = next.Update(Patch{Logs: &[]string{"flashed rev b"}}, opAt(staff, 2*time.Minute))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestUpdate_Rejected(t *testing.T) {
	d := newDoc(t)

	tests := []struct {
		name  string
		patch Patch
		by    Principal
		want  error
	}{
		{"empty patch", Patch{}, staff, errs.ErrValidation},
		{"no effective change", Patch{Title: ptr("Spec v1"), Tags: &[]string{"a", "b"}}, staff, errs.ErrValidation},
		{"blank title", Patch{Title: ptr(" ")}, staff, errs.ErrValidation},
		{"embedded without step", Patch{Category: ptr(CategoryEmbedded), Status: ptr("active")}, staff, errs.ErrValidation},
		{"viewer", Patch{Title: ptr("x")}, viewer, errs.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := d.Update(tt.patch, Op{By: tt.by, At: t0})
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, 1, d.CurrentVersion())
		})
	}
}

func TestUpdate_CategoryToEmbeddedDefaultsStep(t *testing.T) {
	d := newDoc(t)

	m, err := d.Update(Patch{Category: ptr(CategoryEmbedded), Status: ptr("")}, opAt(staff, time.Minute))
	require.NoError(t, err)

	assert.Equal(t, EmbeddedSteps[0], m.Document.Status)
}

func TestRevert(t *testing.T) {
	d := newDoc(t)
	m, err := d.Update(Patch{Title: ptr("Spec v2"), Tags: &[]string{"c"}}, opAt(staff, time.Minute))
	require.NoError(t, err)
	m, err = m.Document.Update(Patch{Description: ptr("third")}, opAt(staff, 2*time.Minute))
	require.NoError(t, err)

	m, err = m.Document.Revert(1, opAt(admin, 3*time.Minute))
	require.NoError(t, err)

	next := m.Document
	assert.Equal(t, 4, next.CurrentVersion())
	assert.Equal(t, "Spec v1", next.Title)
	assert.Equal(t, "first draft", next.Description)
	assert.Equal(t, []string{"a", "b"}, next.Tags)
	v1, _ := next.Versions.Get(1)
	assert.Equal(t, v1.Snapshot, next.Versions.Head().Snapshot)
	assertDense(t, next)

	assert.Equal(t, audit.ActionRevert, m.Entry.Action)
	assert.Equal(t, audit.KindVersion, m.Entry.Kind)
	assert.Equal(t, "Spec v2", m.Entry.DocumentTitle)
	assert.Equal(t, 4, m.Entry.Details.Version)

	_, err = next.Revert(10, opAt(admin, 0))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestDelete(t *testing.T) {
	d := newDoc(t)

	for _, p := range []Principal{staff, viewer} {
		_, err := d.Delete(opAt(p, 0))
		assert.True(t, errors.Is(err, errs.ErrForbidden))
	}

	m, err := d.Delete(opAt(admin, time.Minute))
	require.NoError(t, err)
	assert.True(t, m.Deleted)
	assert.Equal(t, audit.ActionDelete, m.Entry.Action)
	assert.Equal(t, "ada", m.Entry.Actor)
}

func TestApproval(t *testing.T) {
	d := newDoc(t)

	m, err := d.SetupApproval(approval.Multi, []approval.Level{{Role: "Staff", Order: 0}, {Role: "Admin", Order: 1}}, opAt(admin, 0))
	require.NoError(t, err)
	assert.Equal(t, audit.ActionSetupApproval, m.Entry.Action)
	assert.Equal(t, 1, m.Document.CurrentVersion(), "approval setup is not a content change")

	m, err = m.Document.SubmitApproval(approval.Approved, "lgtm", opAt(staff, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Document.Approval.CurrentLevel)
	assert.Equal(t, audit.ActionApprove, m.Entry.Action)
	assert.Equal(t, audit.KindApprove, m.Entry.Kind)
	require.NotNil(t, m.Record)
	signature := m.Record.Signature

	m, err = m.Document.SubmitApproval(approval.Rejected, "no", opAt(admin, 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Document.Approval.CurrentLevel)
	assert.Equal(t, audit.ActionReject, m.Entry.Action)
	assert.Equal(t, 1, m.Entry.Details.ApprovalLevel)

	_, err = m.Document.SubmitApproval(approval.Approved, "", opAt(staff, 3*time.Minute))
	assert.True(t, errors.Is(err, errs.ErrDuplicateApproval))

	_, err = m.Document.SubmitApproval(approval.Approved, "", opAt(viewer, 3*time.Minute))
	assert.True(t, errors.Is(err, errs.ErrForbidden))

	r, err := m.Document.VerifyApproval("sam", signature)
	require.NoError(t, err)
	assert.Equal(t, approval.Approved, r.Decision)

	// setup again resets the flow
	m, err = m.Document.SetupApproval(approval.Multi, []approval.Level{{Role: "Staff", Order: 0}}, opAt(admin, 4*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, m.Document.Approval.Approvals)
	_, err = m.Document.VerifyApproval("sam", signature)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestShareLinks(t *testing.T) {
	d := newDoc(t)

	m, err := d.CreateShareLink(share.View, nil, opAt(staff, 0))
	require.NoError(t, err)
	require.NotNil(t, m.Link)
	token := m.Link.Token
	assert.Equal(t, audit.ActionShare, m.Entry.Action)
	assert.Equal(t, token, m.Entry.Details.ShareToken)

	view, entry, err := m.Document.AccessShared(token, t0.Add(365*24*time.Hour), audit.Provenance{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "Spec v1", view.Title)
	assert.Nil(t, view.File, "view links never expose the payload")
	assert.Equal(t, Anonymous, entry.Actor)
	assert.Equal(t, audit.KindView, entry.Kind)
	assert.Equal(t, "10.0.0.1", entry.Details.Provenance.IPAddress)

	m, err = m.Document.CreateShareLink(share.Download, nil, opAt(staff, 0))
	require.NoError(t, err)
	view, _, err = m.Document.AccessShared(m.Link.Token, t0, audit.Provenance{})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), view.File)

	m, err = m.Document.DeactivateShareLink(token, opAt(staff, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, audit.ActionDeactivateShare, m.Entry.Action)
	_, _, err = m.Document.AccessShared(token, t0, audit.Provenance{})
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = m.Document.DeactivateShareLink("nope", opAt(staff, time.Minute))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestShareLink_ExpiredNotNotFound(t *testing.T) {
	d := newDoc(t)
	past := t0.Add(-time.Second)

	m, err := d.CreateShareLink(share.View, &past, opAt(staff, 0))
	require.NoError(t, err)

	_, entry, err := m.Document.AccessShared(m.Link.Token, t0, audit.Provenance{})
	assert.True(t, errors.Is(err, errs.ErrExpired))
	assert.Nil(t, entry)
}

func TestSetVisibility(t *testing.T) {
	d := newDoc(t)

	m, err := d.SetVisibility(true, opAt(staff, 0))
	require.NoError(t, err)
	assert.True(t, m.Document.Public)
	assert.Equal(t, audit.ActionMakePublic, m.Entry.Action)
	assert.Equal(t, "private", m.Entry.Details.OldValue)

	_, err = m.Document.SetVisibility(true, opAt(staff, 0))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	m, err = m.Document.SetVisibility(false, opAt(staff, 0))
	require.NoError(t, err)
	assert.Equal(t, audit.ActionMakePrivate, m.Entry.Action)
}

func TestDocument_JSON(t *testing.T) {
	d := newDoc(t)
	m, err := d.CreateShareLink(share.View, nil, opAt(staff, 0))
	require.NoError(t, err)
	m, err = m.Document.Update(Patch{Description: ptr("x")}, opAt(staff, time.Minute))
	require.NoError(t, err)

	data, err := json.Marshal(m.Document)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.EqualValues(t, 2, raw["currentVersion"])

	var got Document
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 2, got.CurrentVersion())
	assert.Equal(t, m.Document.Links.All(), got.Links.All())
	assert.Equal(t, m.Document.Title, got.Title)
}
