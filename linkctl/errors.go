package linkctl

import "errors"

// Admin-facing error taxonomy (spec.md §7, §6 admin API). These are
// returned to callers; they never cause a Peer or LinkInterface to be
// torn down by themselves.
var (
	ErrBadIfNum     = errors.New("BAD_IFNUM")
	ErrBadKey       = errors.New("BAD_KEY")
	ErrOutOfSpace   = errors.New("OUT_OF_SPACE")
	ErrInternal     = errors.New("INTERNAL")
	ErrNotFound     = errors.New("NOT_FOUND")
	ErrInvalidState = errors.New("INVALID_STATE")
	ErrNoSuchIface  = errors.New("NO_SUCH_IFACE")
)
