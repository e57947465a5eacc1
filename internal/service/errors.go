package service

import (
	"errors"
	"fmt"
)

var (
	ErrIDRequired       = errors.New("id is required")
	ErrNotFound         = errors.New("not found")
	ErrInvalidParent    = errors.New("invalid parent folder")
	ErrDuplicateRequest = errors.New("request already exists")
	ErrForbidden        = errors.New("access denied")
	ErrValidation       = errors.New("validation failed")
)

// SubtreeError reports a structural mutation that stopped partway through a
// subtree. Prior sibling/descendant updates remain applied; ItemID and Path
// name the node whose mutation failed so the caller can reconcile or retry.
type SubtreeError struct {
	ItemID string
	Path   string
	Err    error
}

func (e *SubtreeError) Error() string {
	return fmt.Sprintf("subtree mutation stopped at item %s (%s): %v", e.ItemID, e.Path, e.Err)
}

func (e *SubtreeError) Unwrap() error { return e.Err }
