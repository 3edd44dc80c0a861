package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/emrgen/docflow/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestInspect(t *testing.T) {
	data := []byte("hello world")
	f := Inspect("notes.txt", "text/plain", data)

	assert.Equal(t, int64(len(data)), f.Size)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", f.Digest)
	assert.Equal(t, 0, f.Pages)
}

func TestFile_Clone(t *testing.T) {
	f := &File{Name: "a", Data: []byte("abc")}
	c := f.Clone()
	c.Data[0] = 'x'

	assert.Equal(t, []byte("abc"), f.Data)
	assert.Nil(t, (*File)(nil).Clone())
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	f := Inspect("a.txt", "text/plain", []byte("payload"))

	require.NoError(t, m.Put(ctx, f))
	require.NoError(t, m.Put(ctx, f))

	got, err := m.Get(ctx, f.Digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = m.Get(ctx, "missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestPreconditionFailed(t *testing.T) {
	assert.True(t, preconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.True(t, preconditionFailed(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 412})))
	assert.False(t, preconditionFailed(&googleapi.Error{Code: 500}))
	assert.False(t, preconditionFailed(errors.New("boom")))
}
