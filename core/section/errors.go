package section

import "github.com/pkg/errors"

var (
	// errors
	ErrNotFound         = errors.New("section not found")
	ErrCycleDetected    = errors.New("section hierarchy contains a cycle")
	ErrInvalidParent    = errors.New("invalid parent section")
	ErrDuplicateSection = errors.New("duplicate section id")
	ErrInvalidOrder     = errors.New("order must list every child section exactly once")
	ErrOrderTaken       = errors.New("another sibling already has this order")
)
