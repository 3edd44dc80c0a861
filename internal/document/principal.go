package document

import (
	"fmt"
	"time"

	"github.com/emrgen/docflow/internal/audit"
	"github.com/emrgen/docflow/internal/errs"
)

// Role is the privilege level of a user.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleStaff  Role = "Staff"
	RoleViewer Role = "Viewer"
)

// Anonymous is the actor recorded for share link access.
const Anonymous = "Anonymous"

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleStaff, RoleViewer:
		return r, nil
	default:
		return "", errs.Invalid("role", "unknown role %q", s)
	}
}

// Principal is an already authenticated user.
type Principal struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Op carries who acts, when, and from where.
type Op struct {
	By         Principal
	At         time.Time
	Provenance audit.Provenance
}

func (op Op) canWrite() error {
	if op.By.Role != RoleAdmin && op.By.Role != RoleStaff {
		return fmt.Errorf("%w: role %q may not modify documents", errs.ErrForbidden, op.By.Role)
	}
	return nil
}

func (op Op) canDelete() error {
	if op.By.Role != RoleAdmin {
		return fmt.Errorf("%w: only admins can delete documents", errs.ErrForbidden)
	}
	return nil
}
