package document

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/version"
)

// Mutation is the outcome of a successful operation. Document is the new
// state (the pre-delete state when Deleted is set).
type Mutation struct {
	Document *Document
	Entry    *audit.Entry
	Record   *approval.Record
	Link     *share.Link
	Deleted  bool
}

// Draft is the input of Create.
type Draft struct {
	Title       string
	Category    string
	Description string
	Status      string
	Tags        []string
	Logs        []string
	UploadedBy  string
	File        *blob.File
}

// Patch lists the fields Update should change. Nil fields are left alone.
type Patch struct {
	Title       *string   `json:"title,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Logs        *[]string `json:"logs,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.Description == nil &&
		p.Status == nil && p.Tags == nil && p.Logs == nil
}

// emit is the single place audit entries are produced. title is the document
// title at action time.
func (d *Document) emit(action audit.Action, kind audit.Kind, actor string, at time.Time, title string, prov audit.Provenance, details *audit.Details) *audit.Entry {
	e := audit.NewEntry(action, kind, actor, at)
	e.DocumentID = d.ID
	e.DocumentTitle = title
	e.Status = d.Status
	if !prov.IsZero() {
		if details == nil {
			details = &audit.Details{}
		}
		p := prov
		details.Provenance = &p
	}
	e.Details = details
	return e
}

func (d *Document) touch(op Op) {
	d.LastModified = op.At
	d.LastModifiedBy = op.By.Username
}

// Create builds a new document at version 1.
func Create(id string, draft Draft, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	draft.Title = strings.TrimSpace(draft.Title)
	draft.Category = strings.TrimSpace(draft.Category)
	if draft.UploadedBy == "" {
		draft.UploadedBy = op.By.Username
	}

	var missing []string
	if draft.Title == "" {
		missing = append(missing, "title")
	}
	if draft.Category == "" {
		missing = append(missing, "category")
	}
	if draft.UploadedBy == "" {
		missing = append(missing, "uploadedBy")
	}
	if len(missing) > 0 {
		return nil, errs.Missing(missing...)
	}

	status, err := ResolveStatus(draft.Category, draft.Status)
	if err != nil {
		return nil, err
	}

	d := &Document{
		ID:             id,
		Title:          draft.Title,
		Category:       draft.Category,
		Description:    draft.Description,
		Status:         status,
		Tags:           NormalizeTags(draft.Tags),
		Logs:           slices.Clone(draft.Logs),
		UploadedBy:     draft.UploadedBy,
		UploadedAt:     op.At,
		LastModified:   op.At,
		LastModifiedBy: draft.UploadedBy,
		File:           draft.File.Clone(),
		Approval:       &approval.Flow{},
		Links:          &share.Links{},
	}
	if d.Logs == nil {
		d.Logs = []string{}
	}
	d.Versions = version.New(d.Snapshot(), draft.UploadedBy, op.At)

	entry := d.emit(audit.ActionUpload, audit.KindCreate, draft.UploadedBy, op.At, d.Title, op.Provenance, &audit.Details{Version: 1})

	return &Mutation{Document: d, Entry: entry}, nil
}

// Update applies the provided fields and appends a version.
func (d *Document) Update(p Patch, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}
	if p.Empty() {
		return nil, errs.Invalid("fields", "no fields to update")
	}

	next := d.Clone()
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, errs.Invalid("title", "title cannot be empty")
		}
		next.Title = title
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		if category == "" {
			return nil, errs.Invalid("category", "category cannot be empty")
		}
		next.Category = category
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Tags != nil {
		next.Tags = NormalizeTags(*p.Tags)
	}
	if p.Logs != nil {
		next.Logs = slices.Clone(*p.Logs)
	}

	if p.Status != nil || p.Category != nil {
		status, err := ResolveStatus(next.Category, next.Status)
		if err != nil {
			return nil, err
		}
		next.Status = status
	}

	changes := changesOf(d, next)
	if len(changes) == 0 {
		return nil, errs.Invalid("fields", "document is not changed")
	}

	fields := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
	}
	v, err := next.Versions.Append(next.Snapshot(), op.By.Username, op.At, "Updated "+strings.Join(fields, ", "))
	if err != nil {
		return nil, err
	}
	next.touch(op)

	kind := audit.KindUpdate
	if len(changes) == 1 && changes[0].Field == "status" {
		kind = audit.KindStatusChange
	}
	details := &audit.Details{Changes: changes, Version: v.Number}
	if len(changes) == 1 {
		details.Field = changes[0].Field
		details.OldValue = changes[0].Old
		details.NewValue = changes[0].New
	}
	entry := next.emit(audit.ActionEdit, kind, op.By.Username, op.At, d.Title, op.Provenance, details)

	return &Mutation{Document: next, Entry: entry}, nil
}

func changesOf(before, after *Document) []audit.Change {
	var out []audit.Change
	add := func(field, old, new string) {
		if old != new {
			out = append(out, audit.Change{Field: field, Old: old, New: new})
		}
	}
	add("title", before.Title, after.Title)
	add("category", before.Category, after.Category)
	add("description", before.Description, after.Description)
	add("status", before.Status, after.Status)
	if !version.SameTags(before.Tags, after.Tags) {
		out = append(out, audit.Change{Field: "tags", Old: strings.Join(before.Tags, ","), New: strings.Join(after.Tags, ",")})
	}
	if !slices.Equal(before.Logs, after.Logs) {
		out = append(out, audit.Change{Field: "logs", Old: strings.Join(before.Logs, "\n"), New: strings.Join(after.Logs, "\n")})
	}
	return out
}

// Revert copies version n onto the live fields as a new head version.
func (d *Document) Revert(n int, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	next := d.Clone()
	prev := next.CurrentVersion()
	v, err := next.Versions.Revert(n, op.By.Username, op.At)
	if err != nil {
		return nil, err
	}
	next.apply(v.Snapshot)
	next.touch(op)

	entry := next.emit(audit.ActionRevert, audit.KindVersion, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		Changes:  changesOf(d, next),
		Field:    "version",
		OldValue: strconv.Itoa(prev),
		NewValue: strconv.Itoa(n),
		Version:  v.Number,
	})

	return &Mutation{Document: next, Entry: entry}, nil
}

// Delete removes the document for good. Only admins may delete.
func (d *Document) Delete(op Op) (*Mutation, error) {
	if err := op.canDelete(); err != nil {
		return nil, err
	}

	gone := d.Clone()
	entry := gone.emit(audit.ActionDelete, audit.KindDelete, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{Version: d.CurrentVersion()})

	return &Mutation{Document: gone, Entry: entry, Deleted: true}, nil
}

// SetupApproval replaces the approval flow.
func (d *Document) SetupApproval(t approval.Type, levels []approval.Level, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	flow, err := approval.Setup(t, levels)
	if err != nil {
		return nil, err
	}

	next := d.Clone()
	next.Approval = flow
	next.touch(op)

	entry := next.emit(audit.ActionSetupApproval, audit.KindUpdate, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		Field:    "approvalFlow",
		NewValue: string(flow.Type),
	})

	return &Mutation{Document: next, Entry: entry}, nil
}

// SubmitApproval records the principal's decision.
func (d *Document) SubmitApproval(decision approval.Decision, comment string, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	next := d.Clone()
	r, err := next.Approval.Submit(d.ID, op.By.Username, string(op.By.Role), decision, comment, op.At)
	if err != nil {
		return nil, err
	}
	next.touch(op)

	action, kind := audit.ActionApprove, audit.KindApprove
	if decision == approval.Rejected {
		action, kind = audit.ActionReject, audit.KindReject
	}
	entry := next.emit(action, kind, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		ApprovalLevel: r.Level,
		NewValue:      string(r.Decision),
	})

	return &Mutation{Document: next, Entry: entry, Record: &r}, nil
}

// VerifyApproval looks up a previously issued signature.
func (d *Document) VerifyApproval(approver, signature string) (approval.Record, error) {
	if d.Approval == nil {
		return approval.Record{}, fmt.Errorf("%w: no approvals", errs.ErrNotFound)
	}
	return d.Approval.Verify(approver, signature)
}

// CreateShareLink mints a new link.
func (d *Document) CreateShareLink(access share.Access, expiresAt *time.Time, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	next := d.Clone()
	link, err := next.Links.Create(access, expiresAt, op.By.Username, op.At)
	if err != nil {
		return nil, err
	}
	next.touch(op)

	entry := next.emit(audit.ActionShare, audit.KindShare, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		ShareToken: link.Token,
		NewValue:   string(link.Access),
	})

	return &Mutation{Document: next, Entry: entry, Link: &link}, nil
}

// DeactivateShareLink turns a link off.
func (d *Document) DeactivateShareLink(token string, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}

	next := d.Clone()
	link, err := next.Links.Deactivate(token)
	if err != nil {
		return nil, err
	}
	next.touch(op)

	entry := next.emit(audit.ActionDeactivateShare, audit.KindShare, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		ShareToken: token,
	})

	return &Mutation{Document: next, Entry: entry, Link: &link}, nil
}

// SetVisibility flips the public flag. Setting the current value is rejected.
func (d *Document) SetVisibility(public bool, op Op) (*Mutation, error) {
	if err := op.canWrite(); err != nil {
		return nil, err
	}
	if d.Public == public {
		return nil, errs.Invalid("isPublic", "document is already %s", visibility(public))
	}

	next := d.Clone()
	next.Public = public
	next.touch(op)

	action := audit.ActionMakePrivate
	if public {
		action = audit.ActionMakePublic
	}
	entry := next.emit(action, audit.KindUpdate, op.By.Username, op.At, d.Title, op.Provenance, &audit.Details{
		Field:    "visibility",
		OldValue: visibility(d.Public),
		NewValue: visibility(public),
	})

	return &Mutation{Document: next, Entry: entry}, nil
}

func visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

// AccessShared resolves token for an anonymous holder. The document is not
// changed but the access is audited.
func (d *Document) AccessShared(token string, at time.Time, prov audit.Provenance) (share.Shared, *audit.Entry, error) {
	if d.Links == nil {
		return share.Shared{}, nil, fmt.Errorf("%w: share link", errs.ErrNotFound)
	}
	link, err := d.Links.Resolve(token, at)
	if err != nil {
		return share.Shared{}, nil, err
	}

	entry := d.emit(audit.ActionAccessShared, audit.KindView, Anonymous, at, d.Title, prov, &audit.Details{
		ShareToken: token,
		NewValue:   string(link.Access),
	})

	return share.Expose(link, d.Subject()), entry, nil
}
