package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action is the human readable label of an audited action.
type Action string

const (
	ActionUpload          Action = "Upload"
	ActionEdit            Action = "Edit"
	ActionDelete          Action = "Delete"
	ActionRevert          Action = "Revert"
	ActionSetupApproval   Action = "Setup Approval Flow"
	ActionApprove         Action = "Approve"
	ActionReject          Action = "Reject"
	ActionShare           Action = "Share Document"
	ActionDeactivateShare Action = "Deactivate Share Link"
	ActionMakePublic      Action = "Make Document Public"
	ActionMakePrivate     Action = "Make Document Private"
	ActionAccessShared    Action = "Access Shared Document"
)

// Kind groups actions for querying.
type Kind string

const (
	KindCreate       Kind = "create"
	KindUpdate       Kind = "update"
	KindDelete       Kind = "delete"
	KindView         Kind = "view"
	KindApprove      Kind = "approve"
	KindReject       Kind = "reject"
	KindShare        Kind = "share"
	KindVersion      Kind = "version"
	KindStatusChange Kind = "status_change"
)

// Provenance describes where a request came from.
type Provenance struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (p Provenance) IsZero() bool {
	return p == Provenance{}
}

// Change is the old and new value of one field.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Details is the optional structured part of an entry.
type Details struct {
	Changes       []Change    `json:"changes,omitempty"`
	Field         string      `json:"field,omitempty"`
	OldValue      string      `json:"oldValue,omitempty"`
	NewValue      string      `json:"newValue,omitempty"`
	Version       int         `json:"version,omitempty"`
	ApprovalLevel int         `json:"approvalLevel,omitempty"`
	ShareToken    string      `json:"shareToken,omitempty"`
	Provenance    *Provenance `json:"provenance,omitempty"`
}

// Entry is one immutable record of the audit trail. DocumentTitle is copied
// at action time and never follows later renames.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	Seq           int64     `json:"seq"`
	Action        Action    `json:"action"`
	Kind          Kind      `json:"kind"`
	Actor         string    `json:"actor"`
	DocumentID    string    `json:"documentId"`
	DocumentTitle string    `json:"documentTitle"`
	Status        string    `json:"status,omitempty"`
	At            time.Time `json:"at"`
	Details       *Details  `json:"details,omitempty"`
}

// NewEntry creates an entry with a fresh id. Seq is assigned by the sink.
func NewEntry(action Action, kind Kind, actor string, at time.Time) *Entry {
	return &Entry{
		ID:     uuid.New(),
		Action: action,
		Kind:   kind,
		Actor:  actor,
		At:     at,
	}
}

// Filter narrows a listing of the trail. Zero fields match everything.
type Filter struct {
	DocumentID string
	Actor      string
	Kind       Kind
	AfterSeq   int64
	Limit      int
	// Ascending lists oldest first; the default is newest first.
	Ascending bool
}

// Sink appends entries to durable storage.
type Sink interface {
	AppendAudit(ctx context.Context, entry *Entry) error
}

// Match reports whether e passes the filter, ignoring Limit and ordering.
func (f Filter) Match(e *Entry) bool {
	if f.DocumentID != "" && e.DocumentID != f.DocumentID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return e.Seq > f.AfterSeq
}
