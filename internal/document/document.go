// Package document is the consistency boundary of the lifecycle engine.
//
// A Document owns its version chain, approval flow and share links. Every
// operation works on a copy of the receiver and returns a Mutation holding the
// new state plus exactly one audit entry; a failed operation returns an error
// and leaves nothing behind. Persisting the Mutation is the caller's job.
package document

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/docflow/internal/approval"
	"github.com/emrgen/docflow/internal/blob"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/emrgen/docflow/internal/share"
	"github.com/emrgen/docflow/internal/version"
)

const (
	CategoryEmbedded = "Embedded System Design"
	StatusActive     = "active"
	// StatusArchived is the retention convention for documents that must be
	// kept; Delete is destructive.
	StatusArchived = "archived"
)

// EmbeddedSteps are the only statuses allowed for CategoryEmbedded.
var EmbeddedSteps = []string{
	"Requirement Analysis",
	"System Specification",
	"Architecture Design",
	"Hardware/Software Partitioning",
	"Detailed Design",
	"Implementation",
	"Testing & Validation",
}

// ResolveStatus validates status against category and fills in the default
// when status is empty.
func ResolveStatus(category, status string) (string, error) {
	status = strings.TrimSpace(status)
	if category == CategoryEmbedded {
		if status == "" {
			return EmbeddedSteps[0], nil
		}
		if !slices.Contains(EmbeddedSteps, status) {
			return "", errs.Invalid("status", "%q is not a step of %s", status, CategoryEmbedded)
		}
		return status, nil
	}
	if status == "" {
		return StatusActive, nil
	}
	return status, nil
}

// NormalizeTags trims, deduplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			set.Add(t)
		}
	}
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

// Document is the aggregate root.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Category       string         `json:"category"`
	Description    string         `json:"description"`
	Status         string         `json:"status"`
	Tags           []string       `json:"tags"`
	Logs           []string       `json:"logs"`
	Public         bool           `json:"isPublic"`
	UploadedBy     string         `json:"uploadedBy"`
	UploadedAt     time.Time      `json:"uploadedAt"`
	LastModified   time.Time      `json:"lastModified"`
	LastModifiedBy string         `json:"lastModifiedBy"`
	File           *blob.File     `json:"file,omitempty"`
	Versions       *version.Chain `json:"versions"`
	Approval       *approval.Flow `json:"approvalFlow"`
	Links          *share.Links   `json:"shareableLinks"`
}

// CurrentVersion is the number of the chain head.
func (d *Document) CurrentVersion() int {
	if d.Versions == nil {
		return 0
	}
	return d.Versions.Current()
}

// Snapshot captures the versioned fields.
func (d *Document) Snapshot() version.Snapshot {
	return version.Snapshot{
		Title:       d.Title,
		Category:    d.Category,
		Description: d.Description,
		Status:      d.Status,
		Tags:        slices.Clone(d.Tags),
	}
}

func (d *Document) apply(s version.Snapshot) {
	d.Title = s.Title
	d.Category = s.Category
	d.Description = s.Description
	d.Status = s.Status
	d.Tags = slices.Clone(s.Tags)
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Tags = slices.Clone(d.Tags)
	c.Logs = slices.Clone(d.Logs)
	c.File = d.File.Clone()
	if d.Versions != nil {
		c.Versions = d.Versions.Clone()
	}
	c.Approval = d.Approval.Clone()
	c.Links = d.Links.Clone()
	return &c
}

// Subject is the share projection source of the document.
func (d *Document) Subject() share.Subject {
	s := share.Subject{
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		UploadedBy:  d.UploadedBy,
		UploadedAt:  d.UploadedAt,
	}
	if d.File != nil {
		s.FileName = d.File.Name
		s.ContentType = d.File.ContentType
		s.File = d.File.Data
	}
	return s
}

func (d *Document) MarshalJSON() ([]byte, error) {
	type alias Document
	return json.Marshal(struct {
		*alias
		CurrentVersion int `json:"currentVersion"`
	}{
		alias:          (*alias)(d),
		CurrentVersion: d.CurrentVersion(),
	})
}
