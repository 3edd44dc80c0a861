package share

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/emrgen/docflow/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func TestParseAccess(t *testing.T) {
	tests := []struct {
		in      string
		want    Access
		wantErr bool
	}{
		{"", View, false},
		{"view", View, false},
		{"download", Download, false},
		{"edit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAccess(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, errs.ErrValidation))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, tok, 2*TokenBytes)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://docs.example.com/shared/abc", URL("https://docs.example.com/", "abc"))
	assert.Equal(t, "http://localhost:3000/shared/abc", URL("http://localhost:3000", "abc"))
}

func TestLinks_Resolve(t *testing.T) {
	var l Links

	open, err := l.Create(View, nil, "alice", t0)
	require.NoError(t, err)
	timed, err := l.Create(Download, at(time.Hour), "alice", t0)
	require.NoError(t, err)
	past, err := l.Create(View, at(-time.Hour), "alice", t0)
	require.NoError(t, err)
	revoked, err := l.Create(View, nil, "alice", t0)
	require.NoError(t, err)
	_, err = l.Deactivate(revoked.Token)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		now   time.Time
		want  error
	}{
		{"open", open.Token, t0.Add(24 * time.Hour), nil},
		{"before expiry", timed.Token, t0.Add(59 * time.Minute), nil},
		{"at expiry", timed.Token, t0.Add(time.Hour), errs.ErrExpired},
		{"created expired", past.Token, t0, errs.ErrExpired},
		{"revoked", revoked.Token, t0, errs.ErrNotFound},
		{"unknown", "nope", t0, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := l.Resolve(tt.token, tt.now)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, link.Token)
		})
	}
}

func TestLinks_Active(t *testing.T) {
	var l Links
	a, _ := l.Create(View, nil, "alice", t0)
	b, _ := l.Create(View, at(time.Hour), "alice", t0)
	c, _ := l.Create(View, nil, "alice", t0)
	_, _ = l.Deactivate(c.Token)

	active := l.Active(t0)
	require.Len(t, active, 2)
	assert.Equal(t, a.Token, active[0].Token)
	assert.Equal(t, b.Token, active[1].Token)

	active = l.Active(t0.Add(2 * time.Hour))
	require.Len(t, active, 1)
	assert.Equal(t, a.Token, active[0].Token)

	assert.Len(t, l.All(), 3)
	assert.Len(t, l.Tokens(), 3)
}

func TestLinks_Deactivate(t *testing.T) {
	var l Links
	link, _ := l.Create(View, nil, "alice", t0)

	_, err := l.Deactivate("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	got, err := l.Deactivate(link.Token)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = l.Deactivate(link.Token)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = l.Resolve(link.Token, t0)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestLinks_CreateRejectsUnknownAccess(t *testing.T) {
	var l Links
	_, err := l.Create("edit", nil, "alice", t0)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	assert.Equal(t, 0, l.Len())
}

func TestLinks_CloneIsIndependent(t *testing.T) {
	var l Links
	link, _ := l.Create(View, at(time.Hour), "alice", t0)

	c := l.Clone()
	_, _ = c.Deactivate(link.Token)

	got, ok := l.Get(link.Token)
	require.True(t, ok)
	assert.True(t, got.Active)
}

func TestLinks_JSON(t *testing.T) {
	var l Links
	_, _ = l.Create(Download, at(time.Hour), "alice", t0)

	data, err := json.Marshal(&l)
	require.NoError(t, err)

	var got Links
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, l.All(), got.All())

	data, err = json.Marshal(&Links{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestExpose(t *testing.T) {
	s := Subject{Title: "Spec", Description: "d", Category: "Normal File", UploadedBy: "alice", UploadedAt: t0, FileName: "spec.pdf", ContentType: "application/pdf", File: []byte("%PDF")}

	var v Shared = Expose(Link{Access: View}, s)
	assert.Equal(t, "Spec", v.Title)
	assert.Equal(t, View, v.Access)
	assert.Nil(t, v.File)
	assert.Empty(t, v.FileName)

	v = Expose(Link{Access: Download}, s)
	assert.Equal(t, []byte("%PDF"), v.File)
	assert.Equal(t, "spec.pdf", v.FileName)
}
