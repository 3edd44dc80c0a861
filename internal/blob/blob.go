// Package blob holds the opaque file payload of a document.
package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/emrgen/docflow/internal/errs"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

const ContentTypePDF = "application/pdf"

// File describes a payload. Data is only set when the bytes travel with the
// document; stores may keep them elsewhere and leave Data empty.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
	Pages       int    `json:"pages,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// Clone returns a copy that does not share Data.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = bytes.Clone(f.Data)
	return &c
}

// Digest is the hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Inspect builds the file description of data. PDF payloads get a page count;
// a PDF that cannot be parsed is still accepted.
func Inspect(name, contentType string, data []byte) *File {
	f := &File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Digest:      Digest(data),
		Data:        data,
	}

	if isPDF(contentType, data) {
		cfg := model.NewDefaultConfiguration()
		cfg.ValidationMode = model.ValidationRelaxed
		pages, err := api.PageCount(bytes.NewReader(data), cfg)
		if err != nil {
			logrus.Warnf("failed to count pages of %s: %v", name, err)
		} else {
			f.Pages = pages
		}
	}

	return f
}

func isPDF(contentType string, data []byte) bool {
	return strings.EqualFold(contentType, ContentTypePDF) || bytes.HasPrefix(data, []byte("%PDF-"))
}

// Store keeps payload bytes addressed by digest.
type Store interface {
	Put(ctx context.Context, f *File) error
	Get(ctx context.Context, digest string) ([]byte, error)
}

var _ Store = (*Memory)(nil)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[f.Digest]; ok {
		return nil
	}
	m.blobs[f.Digest] = bytes.Clone(f.Data)
	return nil
}

func (m *Memory) Get(_ context.Context, digest string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[digest]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", errs.ErrNotFound, digest)
	}
	return bytes.Clone(data), nil
}
