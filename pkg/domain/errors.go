package domain

import (
	"errors"
	"fmt"
)

// Registry failure taxonomy. Every failure aborts the whole operation; callers
// distinguish them with errors.Is.
var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrNotOwner             = errors.New("from is not the owner")
	ErrNotLockedForTransfer = errors.New("resource must be locked before transfer")
	ErrNotLocked            = errors.New("resource is not locked")
	ErrTransferToNull       = errors.New("transfer to null principal")
	ErrReceiverRejected     = errors.New("receiver rejected transfer")
	ErrDeploymentFailed     = errors.New("deployment failed")
	ErrAddressCollision     = errors.New("instance address already occupied")
	ErrIncorrectFee         = errors.New("incorrect creation fee")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrMetadataConflict     = errors.New("metadata conflict")
	ErrReentrantCall        = errors.New("reentrant call")
)

// ResourceError annotates a failure with the operation and resource it concerns.
type ResourceError struct {
	Op  string
	ID  ResourceID
	Err error
}

func (e *ResourceError) Error() string {
	if e.ID == NoResource {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s resource %s: %v", e.Op, e.ID, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Fail wraps err as a ResourceError.
func Fail(op string, id ResourceID, err error) error {
	return &ResourceError{Op: op, ID: id, Err: err}
}
