// Package version keeps the dense, append-only history of a document's
// metadata snapshots.
package version

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/docflow/internal/errs"
)

const InitialSummary = "Initial version"

// Snapshot is the versioned subset of a document's metadata.
type Snapshot struct {
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
}

func (s Snapshot) clone() Snapshot {
	s.Tags = slices.Clone(s.Tags)
	return s
}

// Entry is one immutable element of the chain. Previous is 0 for version 1.
type Entry struct {
	Number   int       `json:"version"`
	At       time.Time `json:"date"`
	Author   string    `json:"by"`
	Snapshot Snapshot  `json:"changes"`
	Previous int       `json:"previousVersion,omitempty"`
	Summary  string    `json:"changeSummary"`
}

func (e Entry) clone() Entry {
	e.Snapshot = e.Snapshot.clone()
	return e
}

// Chain holds entries 1..n in order.
type Chain struct {
	entries []Entry
}

// New starts a chain at version 1.
func New(initial Snapshot, author string, at time.Time) *Chain {
	return &Chain{
		entries: []Entry{{
			Number:   1,
			At:       at,
			Author:   author,
			Snapshot: initial.clone(),
			Summary:  InitialSummary,
		}},
	}
}

// Restore rebuilds a chain from persisted entries, rejecting any history
// that is not exactly 1..n.
func Restore(entries []Entry) (*Chain, error) {
	c := &Chain{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		c.entries = append(c.entries, e.clone())
	}
	slices.SortFunc(c.entries, func(a, b Entry) int { return a.Number - b.Number })
	if err := c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) check() error {
	if len(c.entries) == 0 {
		return errs.Inconsistent("version chain is empty")
	}
	for i, e := range c.entries {
		if e.Number != i+1 {
			return errs.Inconsistent("version chain expected version %d, found %d", i+1, e.Number)
		}
		if i == 0 && e.Previous != 0 {
			return errs.Inconsistent("version 1 references previous version %d", e.Previous)
		}
		if i > 0 && e.Previous != i {
			return errs.Inconsistent("version %d references previous version %d", e.Number, e.Previous)
		}
	}
	return nil
}

// Current is the head version number.
func (c *Chain) Current() int {
	return len(c.entries)
}

// Head returns the latest entry.
func (c *Chain) Head() Entry {
	return c.entries[len(c.entries)-1].clone()
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the history, oldest first.
func (c *Chain) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Get returns version n.
func (c *Chain) Get(n int) (Entry, error) {
	if n < 1 || n > len(c.entries) {
		return Entry{}, fmt.Errorf("%w: version %d", errs.ErrNotFound, n)
	}
	return c.entries[n-1].clone(), nil
}

// Append adds a new head. It only fails if the existing history is broken.
func (c *Chain) Append(s Snapshot, author string, at time.Time, summary string) (Entry, error) {
	if err := c.check(); err != nil {
		return Entry{}, err
	}

	head := len(c.entries)
	e := Entry{
		Number:   head + 1,
		At:       at,
		Author:   author,
		Snapshot: s.clone(),
		Previous: head,
		Summary:  summary,
	}
	c.entries = append(c.entries, e)

	return e.clone(), nil
}

// Revert appends a copy of version n's snapshot as the new head. Nothing is
// removed or renumbered.
func (c *Chain) Revert(n int, author string, at time.Time) (Entry, error) {
	target, err := c.Get(n)
	if err != nil {
		return Entry{}, err
	}
	return c.Append(target.Snapshot, author, at, fmt.Sprintf("Reverted to version %d", n))
}

// Clone returns an independent copy.
func (c *Chain) Clone() *Chain {
	return &Chain{entries: c.Entries()}
}

func (c *Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.entries)
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	restored, err := Restore(entries)
	if err != nil {
		return err
	}
	*c = *restored
	return nil
}

// FieldChange is the old and new value of a changed field.
type FieldChange[T any] struct {
	Old T `json:"old"`
	New T `json:"new"`
}

// Diff holds one entry per tracked field, nil when unchanged.
type Diff struct {
	Title       *FieldChange[string]   `json:"title"`
	Description *FieldChange[string]   `json:"description"`
	Category    *FieldChange[string]   `json:"category"`
	Status      *FieldChange[string]   `json:"status"`
	Tags        *FieldChange[[]string] `json:"tags"`
}

// Empty reports whether no tracked field changed.
func (d Diff) Empty() bool {
	return d.Title == nil && d.Description == nil && d.Category == nil && d.Status == nil && d.Tags == nil
}

// Diff compares the snapshots of versions v1 and v2.
func (c *Chain) Diff(v1, v2 int) (Diff, error) {
	a, err := c.Get(v1)
	if err != nil {
		return Diff{}, err
	}
	b, err := c.Get(v2)
	if err != nil {
		return Diff{}, err
	}
	return Compare(a.Snapshot, b.Snapshot), nil
}

// Compare is the field-by-field comparison behind Diff. Tags are compared as
// whole sets.
func Compare(a, b Snapshot) Diff {
	var d Diff
	d.Title = changed(a.Title, b.Title)
	d.Description = changed(a.Description, b.Description)
	d.Category = changed(a.Category, b.Category)
	d.Status = changed(a.Status, b.Status)
	if !SameTags(a.Tags, b.Tags) {
		d.Tags = &FieldChange[[]string]{Old: slices.Clone(a.Tags), New: slices.Clone(b.Tags)}
	}
	return d
}

func changed(old, new string) *FieldChange[string] {
	if old == new {
		return nil
	}
	return &FieldChange[string]{Old: old, New: new}
}

// SameTags compares two tag lists as sets.
func SameTags(a, b []string) bool {
	return mapset.NewThreadUnsafeSet(a...).Equal(mapset.NewThreadUnsafeSet(b...))
}
