package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/emrgen/docflow/internal/errs"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

var _ Store = (*GCS)(nil)

// GCS stores payloads in a bucket under documents/<digest>. Objects are
// written once; an existing object is left untouched.
type GCS struct {
	bucket *storage.BucketHandle
	prefix string
}

func NewGCS(client *storage.Client, bucket string) *GCS {
	return &GCS{bucket: client.Bucket(bucket), prefix: "documents/"}
}

func (g *GCS) object(digest string) *storage.ObjectHandle {
	return g.bucket.Object(g.prefix + digest)
}

func (g *GCS) Put(ctx context.Context, f *File) error {
	w := g.object(f.Digest).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = f.ContentType

	if _, err := io.Copy(w, bytes.NewReader(f.Data)); err != nil {
		_ = w.Close()
		if preconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("failed to write blob %s: %w", f.Digest, err)
	}

	if err := w.Close(); err != nil {
		if preconditionFailed(err) {
			logrus.Debugf("blob %s already stored", f.Digest)
			return nil
		}
		return fmt.Errorf("failed to finalize blob %s: %w", f.Digest, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, digest string) ([]byte, error) {
	r, err := g.object(digest).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: blob %s", errs.ErrNotFound, digest)
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func preconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
