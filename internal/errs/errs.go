// Package errs holds the failure categories shared by the lifecycle engine.
// Every error returned by the engine wraps exactly one of the sentinels below,
// so collaborators can map it to a transport status with KindOf.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when an id, token or version is absent.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the acting role lacks the privilege.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when the stored revision moved since it was loaded.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateApproval is returned when an approver signs the same flow twice.
	ErrDuplicateApproval = errors.New("duplicate approval")
	// ErrExpired is returned for a share link past its expiry.
	ErrExpired = errors.New("expired")
	// ErrInconsistent signals a broken internal invariant (a bug, not a user error).
	ErrInconsistent = errors.New("internal consistency violation")
)

// Kind is the stable category of a failure.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindDuplicateApproval
	KindExpired
	KindInconsistent
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindDuplicateApproval:
		return "duplicate_approval"
	case KindExpired:
		return "expired"
	case KindInconsistent:
		return "inconsistent"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrConflict, KindConflict},
	{ErrDuplicateApproval, KindDuplicateApproval},
	{ErrExpired, KindExpired},
	{ErrInconsistent, KindInconsistent},
}

// KindOf returns the category of err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// ValidationError lists the offending fields of a rejected input.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Fields) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Missing reports required fields that were not provided.
func Missing(fields ...string) error {
	return &ValidationError{Fields: fields, Reason: "missing required fields"}
}

// Invalid reports a single malformed field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Fields: []string{field}, Reason: fmt.Sprintf(format, args...)}
}

// Inconsistent wraps ErrInconsistent with context.
func Inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with context.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with context.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
