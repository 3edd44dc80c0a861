package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"missing", Missing("title", "category"), KindValidation},
		{"invalid", Invalid("status", "unknown step %q", "x"), KindValidation},
		{"wrapped not found", fmt.Errorf("%w: version 3", ErrNotFound), KindNotFound},
		{"forbidden", ErrForbidden, KindForbidden},
		{"conflict", fmt.Errorf("store: %w", ErrConflict), KindConflict},
		{"duplicate", ErrDuplicateApproval, KindDuplicateApproval},
		{"expired", ErrExpired, KindExpired},
		{"inconsistent", Inconsistent("gap at %d", 4), KindInconsistent},
		{"not found helper", NotFoundf("document %s", "x"), KindNotFound},
		{"conflict helper", Conflictf("revision %d", 2), KindConflict},
		{"unknown", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := Missing("title", "uploadedBy")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: missing required fields [title, uploadedBy]", err.Error())

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"title", "uploadedBy"}, verr.Fields)
}
