package store

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/emrgen/docflow/internal/document"
	"github.com/emrgen/docflow/internal/errs"
)

// record is the serialized form of a document used by the key-value and
// cloud stores.
type record struct {
	Revision Revision           `json:"revision"`
	Document *document.Document `json:"document"`
}

func missOrConflict(found bool, id string, stored, expected Revision) error {
	if !found {
		return errs.NotFoundf("document %s", id)
	}
	return errs.Conflictf("document %s is at revision %d, expected %d", id, stored, expected)
}

// matchDocument applies a DocumentFilter in memory.
func matchDocument(doc *document.Document, f DocumentFilter) bool {
	if f.Category != "" && doc.Category != f.Category {
		return false
	}
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, func(t string) bool { return slices.Contains(doc.Tags, t) }) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(doc.Title), q) && !strings.Contains(strings.ToLower(doc.Description), q) {
			return false
		}
	}
	return true
}

// sortDocuments orders by upload time, newest first, and applies the limit.
func sortDocuments(docs []*document.Document, limit int) []*document.Document {
	slices.SortStableFunc(docs, func(a, b *document.Document) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
