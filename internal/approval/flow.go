// Package approval drives a document through zero, one or many sign-offs.
package approval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/docflow/internal/errs"
)

// Type selects single or multi-level approval.
type Type string

const (
	Single Type = "single"
	Multi  Type = "multi"
)

// Decision is the outcome an approver submits.
type Decision string

const (
	Pending  Decision = "pending"
	Approved Decision = "approved"
	Rejected Decision = "rejected"
)

// Level is one required sign-off step.
type Level struct {
	Role  string `json:"role"`
	Order int    `json:"order"`
}

// Record is a submitted decision. Level is the flow level at submission time.
type Record struct {
	Approver  string    `json:"approver"`
	Role      string    `json:"role"`
	Decision  Decision  `json:"status"`
	Comment   string    `json:"comment,omitempty"`
	At        time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Signature string    `json:"signature"`
}

// Flow is the approval state of one document. The zero value is an
// unconfigured single-approver flow.
type Flow struct {
	Type         Type     `json:"type"`
	Levels       []Level  `json:"levels"`
	CurrentLevel int      `json:"currentLevel"`
	Approvals    []Record `json:"approvals"`
}

// Policy computes the level after a record was accepted.
type Policy func(f *Flow, r Record) int

// AdvanceOnAnyDecision moves a multi-level flow forward one level for every
// decision, rejections included. Single flows never move.
func AdvanceOnAnyDecision(f *Flow, _ Record) int {
	if f.kind() == Multi {
		return f.CurrentLevel + 1
	}
	return f.CurrentLevel
}

// Advance is the policy applied by Submit.
var Advance Policy = AdvanceOnAnyDecision

// Setup builds a fresh flow. Prior approvals are discarded by replacing the
// flow value.
func Setup(t Type, levels []Level) (*Flow, error) {
	if t == "" {
		t = Single
	}
	if t != Single && t != Multi {
		return nil, errs.Invalid("type", "unknown approval type %q", t)
	}
	if t == Multi && len(levels) == 0 {
		return nil, errs.Invalid("levels", "multi-level approval needs at least one level")
	}

	orders := mapset.NewThreadUnsafeSet[int]()
	for i, l := range levels {
		if l.Role == "" {
			return nil, errs.Invalid("levels", "level %d has no role", i)
		}
		if !orders.Add(l.Order) {
			return nil, errs.Invalid("levels", "duplicate level order %d", l.Order)
		}
	}

	sorted := slices.Clone(levels)
	slices.SortStableFunc(sorted, func(a, b Level) int { return a.Order - b.Order })

	return &Flow{
		Type:         t,
		Levels:       sorted,
		CurrentLevel: 0,
		Approvals:    []Record{},
	}, nil
}

func (f *Flow) kind() Type {
	if f.Type == "" {
		return Single
	}
	return f.Type
}

// Configured reports whether Setup has produced levels for this flow.
func (f *Flow) Configured() bool {
	return f.Type != "" || len(f.Levels) > 0
}

// Clone returns an independent copy.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return &Flow{}
	}
	return &Flow{
		Type:         f.Type,
		Levels:       slices.Clone(f.Levels),
		CurrentLevel: f.CurrentLevel,
		Approvals:    slices.Clone(f.Approvals),
	}
}

// Submit records a decision. An approver may sign a flow only once.
func (f *Flow) Submit(docID, approver, role string, d Decision, comment string, at time.Time) (Record, error) {
	if approver == "" {
		return Record{}, errs.Missing("approver")
	}
	if d != Approved && d != Rejected {
		return Record{}, errs.Invalid("status", "decision must be %q or %q, got %q", Approved, Rejected, d)
	}
	if _, ok := f.find(approver); ok {
		return Record{}, fmt.Errorf("%w: %s already signed this document", errs.ErrDuplicateApproval, approver)
	}

	r := Record{
		Approver:  approver,
		Role:      role,
		Decision:  d,
		Comment:   comment,
		At:        at,
		Level:     f.CurrentLevel,
		Signature: Sign(approver, docID, at),
	}
	f.Approvals = append(f.Approvals, r)
	f.CurrentLevel = Advance(f, r)

	return r, nil
}

func (f *Flow) find(approver string) (Record, bool) {
	for _, r := range f.Approvals {
		if r.Approver == approver {
			return r, true
		}
	}
	return Record{}, false
}

// Verify returns the record matching both approver and signature.
func (f *Flow) Verify(approver, signature string) (Record, error) {
	for _, r := range f.Approvals {
		if r.Approver == approver && r.Signature == signature {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: no approval by %s with that signature", errs.ErrNotFound, approver)
}

// PendingFor reports whether the current level waits for role.
func (f *Flow) PendingFor(role string) bool {
	if f.CurrentLevel < 0 || f.CurrentLevel >= len(f.Levels) {
		return false
	}
	if f.Levels[f.CurrentLevel].Role != role {
		return false
	}
	for _, r := range f.Approvals {
		if r.Level == f.CurrentLevel && r.Role == role {
			return false
		}
	}
	return true
}

// Complete reports whether every level has a decision (multi) or an approval
// was given (single).
func (f *Flow) Complete() bool {
	if f.kind() == Multi {
		return f.CurrentLevel >= len(f.Levels)
	}
	for _, r := range f.Approvals {
		if r.Decision == Approved {
			return true
		}
	}
	return false
}

// Sign is the tamper-evidence fingerprint of a submission. It is not a
// verifiable digital signature.
func Sign(approver, docID string, at time.Time) string {
	sum := sha256.Sum256([]byte(approver + docID + strconv.FormatInt(at.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}
