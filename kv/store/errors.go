package store

import (
	"github.com/pingcap/errors"
)

// Errors raised by store operations. The transaction layer propagates these
// unchanged; callers compare with errors.Cause.
var (
	ErrNotFound         = errors.New("path does not exist")
	ErrPermissionDenied = errors.New("permission denied")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrInvalidPath      = errors.New("invalid path")
	ErrNoOwner          = errors.New("permission list must name an owner")
	ErrRootRm           = errors.New("cannot remove store root")
)
