package session

import (
	"fmt"

	"github.com/dshills/diffchat/internal/providers"
	"github.com/pkg/errors"
)

// UnknownRoleError is returned for a role that is not configured.
type UnknownRoleError struct {
	Role  string
	Known []string
}

func (e *UnknownRoleError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown role %q", e.Role)
	}
	return fmt.Sprintf("unknown role %q (configured: %v)", e.Role, e.Known)
}

// UnknownHandleError is returned for a conversation handle not in the store.
type UnknownHandleError struct {
	Handle string
}

func (e *UnknownHandleError) Error() string {
	return fmt.Sprintf("unknown conversation handle %q", e.Handle)
}

// CollaboratorError wraps a failed call to the document index or the model.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IsAuth reports whether the provider rejected the credentials.
func (e *CollaboratorError) IsAuth() bool {
	return providers.IsAuthError(e.Err)
}

func collaborator(op string, err error) error {
	return &CollaboratorError{Op: op, Err: err}
}

// IsUnknownRole reports whether err is or wraps an *UnknownRoleError.
func IsUnknownRole(err error) bool {
	var e *UnknownRoleError
	return errors.As(err, &e)
}

// IsUnknownHandle reports whether err is or wraps an *UnknownHandleError.
func IsUnknownHandle(err error) bool {
	var e *UnknownHandleError
	return errors.As(err, &e)
}
